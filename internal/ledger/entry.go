package ledger

import (
	"fmt"
	"time"
)

// Action is the kind of sync operation an entry records.
type Action string

const (
	ActionFullSync           Action = "full_sync"
	ActionPush               Action = "push"
	ActionPull               Action = "pull"
	ActionBackup             Action = "backup"
	ActionRestore            Action = "restore"
	ActionConflictResolution Action = "conflict_resolution"
)

// Actions lists the known actions.
var Actions = []Action{ActionFullSync, ActionPush, ActionPull, ActionBackup, ActionRestore, ActionConflictResolution}

// ParseAction validates s.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown sync action %q", s)
}

// Status is the outcome of a sync attempt.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
	StatusSkipped        Status = "skipped"
)

// Statuses lists the known statuses.
var Statuses = []Status{StatusSuccess, StatusPartialSuccess, StatusFailed, StatusCancelled, StatusSkipped}

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown sync status %q", s)
}

// Entry is one sync attempt outcome.
//
// The JSON field names are a stable export contract; new fields are added,
// never renamed. Seq, PrevHash and Hash are assigned by the ledger on
// append; everything else is stored exactly as the producer supplied it,
// including values a validator would reject (negative counts), since
// validation belongs to the producer.
type Entry struct {
	Seq               int64     `json:"seq" yaml:"seq"`
	Timestamp         time.Time `json:"timestamp" yaml:"timestamp"`
	Action            Action    `json:"action" yaml:"action"`
	Status            Status    `json:"status" yaml:"status"`
	RecordsDownloaded int       `json:"recordsDownloaded" yaml:"recordsDownloaded"`
	RecordsUploaded   int       `json:"recordsUploaded" yaml:"recordsUploaded"`
	DurationMs        int64     `json:"durationMs" yaml:"durationMs"`
	ErrorCode         string    `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	ErrorMessage      string    `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	Details           string    `json:"details" yaml:"details"`
	PrevHash          string    `json:"prevHash" yaml:"prevHash"`
	Hash              string    `json:"hash" yaml:"hash"`
}

// HasError reports whether the entry carries error information.
func (e Entry) HasError() bool {
	return e.ErrorCode != "" || e.ErrorMessage != ""
}
