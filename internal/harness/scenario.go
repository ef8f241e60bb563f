package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/molecules/internal/recurrence"
)

// Scenario is a scripted day-to-day use of the habit engine. Steps run
// against a fresh in-memory store with a fake clock and sequential ids, so
// the resulting trace is reproducible.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Templates lists CUE files declaring templates under the "template" key.
	// Paths are relative to the scenario file location.
	Templates []string `yaml:"templates"`

	// Now is the initial clock reading (RFC 3339). Defaults to DefaultNow.
	Now string `yaml:"now,omitempty"`

	// HistoryMax bounds the sync history. Zero uses the ledger default.
	HistoryMax int `yaml:"history_max,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultNow is the clock start used when a scenario sets none.
const DefaultNow = "2024-01-01T08:00:00Z"

// Step is one user or system action.
type Step struct {
	Action string `yaml:"action"`

	// Template and Date select a molecule; Atom selects one of its atoms by
	// title.
	Template string `yaml:"template,omitempty"`
	Date     string `yaml:"date,omitempty"`
	Atom     string `yaml:"atom,omitempty"`

	// From and To bound a materialize range, To exclusive.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	// Value is the raw input for set, the artifact path for
	// complete_capture, the failure reason for fail_capture, the new date
	// for reschedule and the duration for advance.
	Value string `yaml:"value,omitempty"`

	Sync *SyncStep `yaml:"sync,omitempty"`
}

// SyncStep describes one sync attempt reported to the history ledger.
type SyncStep struct {
	Action     string `yaml:"action"`
	Status     string `yaml:"status,omitempty"`
	Downloaded int    `yaml:"downloaded,omitempty"`
	Uploaded   int    `yaml:"uploaded,omitempty"`
	Duration   string `yaml:"duration,omitempty"`
	Error      string `yaml:"error,omitempty"`
	ErrorCode  string `yaml:"error_code,omitempty"`
	Details    string `yaml:"details,omitempty"`
}

// Step actions.
const (
	StepMaterialize     = "materialize"
	StepToggle          = "toggle"
	StepIncrement       = "increment"
	StepDecrement       = "decrement"
	StepSet             = "set"
	StepBeginCapture    = "begin_capture"
	StepCompleteCapture = "complete_capture"
	StepFailCapture     = "fail_capture"
	StepRetryCapture    = "retry_capture"
	StepReschedule      = "reschedule"
	StepDelete          = "delete"
	StepPurgeFuture     = "purge_future"
	StepAdvance         = "advance"
	StepSync            = "sync"
	StepClearHistory    = "clear_history"
)

// Assertion validates the persisted state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Template string `yaml:"template,omitempty"`
	Date     string `yaml:"date,omitempty"`
	Atom     string `yaml:"atom,omitempty"`

	Count     *int     `yaml:"count,omitempty"`
	Progress  string   `yaml:"progress,omitempty"`
	Completed *bool    `yaml:"completed,omitempty"`
	Phase     string   `yaml:"phase,omitempty"`
	Value     *float64 `yaml:"value,omitempty"`
	Status    string   `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertMoleculeCount = "molecule_count"
	AssertMolecule      = "molecule"
	AssertAtom          = "atom"
	AssertDayComplete   = "day_complete"
	AssertHistoryCount  = "history_count"
	AssertHistoryLatest = "history_latest"
	AssertHistoryValid  = "history_verified"
)

// LoadScenario reads and parses a scenario YAML file. Template paths are
// resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, p := range s.Templates {
		if !filepath.IsAbs(p) {
			s.Templates[i] = filepath.Join(base, p)
		}
	}
	for _, p := range s.Templates {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: template file not found: %s", p)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. Template paths are left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Templates) == 0 {
		return fmt.Errorf("templates list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Now != "" {
		if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
			return fmt.Errorf("now: %w", err)
		}
	}
	if s.HistoryMax < 0 {
		return fmt.Errorf("history_max must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	requireDates := func(names ...string) error {
		values := map[string]string{"date": step.Date, "from": step.From, "to": step.To}
		for _, n := range names {
			if values[n] == "" {
				return fmt.Errorf("%s: %s is required", step.Action, n)
			}
			if _, err := recurrence.ParseDate(values[n]); err != nil {
				return fmt.Errorf("%s: %s: %w", step.Action, n, err)
			}
		}
		return nil
	}
	requireTemplate := func() error {
		if step.Template == "" {
			return fmt.Errorf("%s: template is required", step.Action)
		}
		return nil
	}

	switch step.Action {
	case "":
		return fmt.Errorf("action is required")
	case StepMaterialize:
		if err := requireTemplate(); err != nil {
			return err
		}
		return requireDates("from", "to")
	case StepToggle, StepIncrement, StepDecrement, StepSet,
		StepBeginCapture, StepCompleteCapture, StepFailCapture, StepRetryCapture:
		if err := requireTemplate(); err != nil {
			return err
		}
		if step.Atom == "" {
			return fmt.Errorf("%s: atom is required", step.Action)
		}
		return requireDates("date")
	case StepReschedule:
		if err := requireTemplate(); err != nil {
			return err
		}
		if _, err := recurrence.ParseDate(step.Value); err != nil {
			return fmt.Errorf("reschedule: value: %w", err)
		}
		return requireDates("date")
	case StepDelete:
		if err := requireTemplate(); err != nil {
			return err
		}
		return requireDates("date")
	case StepAdvance:
		if _, err := time.ParseDuration(step.Value); err != nil {
			return fmt.Errorf("advance: value: %w", err)
		}
		return nil
	case StepSync:
		if step.Sync == nil || step.Sync.Action == "" {
			return fmt.Errorf("sync: sync.action is required")
		}
		if step.Sync.Duration != "" {
			if _, err := time.ParseDuration(step.Sync.Duration); err != nil {
				return fmt.Errorf("sync: duration: %w", err)
			}
		}
		return nil
	case StepPurgeFuture, StepClearHistory:
		return nil
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertMoleculeCount, AssertHistoryCount:
		if a.Count == nil {
			return fmt.Errorf("%s: count is required", a.Type)
		}
	case AssertMolecule:
		if a.Template == "" || a.Date == "" {
			return fmt.Errorf("molecule: template and date are required")
		}
	case AssertAtom:
		if a.Template == "" || a.Date == "" || a.Atom == "" {
			return fmt.Errorf("atom: template, date and atom are required")
		}
	case AssertDayComplete:
		if a.Date == "" || a.Completed == nil {
			return fmt.Errorf("day_complete: date and completed are required")
		}
	case AssertHistoryLatest:
		if a.Status == "" {
			return fmt.Errorf("history_latest: status is required")
		}
	case AssertHistoryValid:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Date != "" {
		if _, err := recurrence.ParseDate(a.Date); err != nil {
			return fmt.Errorf("%s: date: %w", a.Type, err)
		}
	}
	return nil
}
