package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DomainEntry separates entry hashes from any other SHA-256 use.
// The version suffix allows a future algorithm migration.
const DomainEntry = "molecules/sync-history/v1"

// hashEntry computes SHA256(domain 0x00 prevHash 0x00 canonical(entry)).
// The null separators prevent boundary ambiguity between the parts.
func hashEntry(prevHash string, e Entry) (string, error) {
	data, err := canonicalEntry(e)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(DomainEntry))
	h.Write([]byte{0x00})
	h.Write([]byte(prevHash))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalEntry serializes the hashed fields of e deterministically: keys
// sorted, strings NFC-normalized, no HTML escaping, integers only.
// Hash and PrevHash are excluded; the chain carries PrevHash separately.
func canonicalEntry(e Entry) ([]byte, error) {
	fields := map[string]any{
		"seq":               e.Seq,
		"timestamp":         e.Timestamp.UTC().Format(time.RFC3339Nano),
		"action":            string(e.Action),
		"status":            string(e.Status),
		"recordsDownloaded": int64(e.RecordsDownloaded),
		"recordsUploaded":   int64(e.RecordsUploaded),
		"durationMs":        e.DurationMs,
		"errorCode":         e.ErrorCode,
		"errorMessage":      e.ErrorMessage,
		"details":           e.Details,
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	// Keys are ASCII, so byte order matches UTF-16 code unit order.
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := canonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		switch v := fields[k].(type) {
		case string:
			s, err := canonicalString(v)
			if err != nil {
				return nil, fmt.Errorf("value for key %q: %w", k, err)
			}
			buf.Write(s)
		case int64:
			buf.WriteString(strconv.FormatInt(v, 10))
		default:
			return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// canonicalString encodes s as a JSON string after NFC normalization, with
// HTML escaping disabled.
func canonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// VerifyError describes the first broken link found by Verify.
type VerifyError struct {
	Seq    int64
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("sync history entry %d: %s", e.Seq, e.Reason)
}

// Verify checks the hash chain of an exported snapshot (newest first, as
// Snapshot returns it). The oldest retained entry's PrevHash cannot be
// checked because its predecessor may have been evicted.
func Verify(entries []Entry) error {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		want, err := hashEntry(e.PrevHash, e)
		if err != nil {
			return &VerifyError{Seq: e.Seq, Reason: err.Error()}
		}
		if e.Hash != want {
			return &VerifyError{Seq: e.Seq, Reason: "hash does not match contents"}
		}
		if i < len(entries)-1 {
			older := entries[i+1]
			if e.PrevHash != older.Hash {
				return &VerifyError{Seq: e.Seq, Reason: fmt.Sprintf("prevHash does not link to entry %d", older.Seq)}
			}
			if e.Seq <= older.Seq {
				return &VerifyError{Seq: e.Seq, Reason: "sequence is not increasing"}
			}
		}
	}
	return nil
}
