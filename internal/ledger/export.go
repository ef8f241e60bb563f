package ledger

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is the export envelope. An empty ledger exports an empty,
// non-null entries list.
type Document struct {
	Entries []Entry `json:"entries" yaml:"entries"`
}

// ExportSnapshot returns the export document for the current entries. It
// does not modify the ledger.
func (l *Ledger) ExportSnapshot() Document {
	return Document{Entries: l.Snapshot()}
}

// Export writes the snapshot to w.
func (l *Ledger) Export(w io.Writer, format Format) error {
	return WriteDocument(w, l.ExportSnapshot(), format)
}

// WriteDocument encodes doc in the given format.
func WriteDocument(w io.Writer, doc Document, format Format) error {
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("export sync history: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("export sync history: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("export sync history: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("export sync history: unknown format %q", format)
	}
}

// ReadDocument decodes an export produced by WriteDocument.
func ReadDocument(r io.Reader, format Format) (Document, error) {
	var doc Document
	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return Document{}, fmt.Errorf("read sync history: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return Document{}, fmt.Errorf("read sync history: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("read sync history: unknown format %q", format)
	}
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	return doc, nil
}
