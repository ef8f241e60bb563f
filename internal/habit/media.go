package habit

import (
	"time"
)

// CapturePhase is the state of a media atom.
type CapturePhase string

const (
	PhasePending   CapturePhase = "pending"
	PhaseCapturing CapturePhase = "capturing"
	PhaseCaptured  CapturePhase = "captured"
	PhaseFailed    CapturePhase = "failed"
)

// ParseCapturePhase maps stored text to a phase. Unknown values read back as
// pending so a corrupt row stays retryable.
func ParseCapturePhase(s string) (CapturePhase, bool) {
	switch p := CapturePhase(s); p {
	case PhasePending, PhaseCapturing, PhaseCaptured, PhaseFailed:
		return p, true
	}
	return PhasePending, false
}

// CaptureSettings configures the capture subsystem for one media atom.
type CaptureSettings struct {
	Kind        InputType     `json:"kind" yaml:"-"`
	Quality     string        `json:"quality" yaml:"quality"`
	Format      string        `json:"format" yaml:"format"`
	MaxDuration time.Duration `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
}

// Type defaults used when a template has no usable override.
var (
	DefaultPhoto = CaptureSettings{Kind: InputPhoto, Quality: "high", Format: "jpeg"}
	DefaultVideo = CaptureSettings{Kind: InputVideo, Quality: "medium", Format: "mp4", MaxDuration: time.Minute}
	DefaultAudio = CaptureSettings{Kind: InputAudio, Quality: "medium", Format: "m4a", MaxDuration: 5 * time.Minute}
)

// DefaultCaptureSettings returns the default for kind. Non-media kinds get
// the photo default; callers only ask for media kinds.
func DefaultCaptureSettings(kind InputType) CaptureSettings {
	switch kind {
	case InputVideo:
		return DefaultVideo
	case InputAudio:
		return DefaultAudio
	default:
		return DefaultPhoto
	}
}

// CaptureSettingsResolver looks up a template-level capture override. The
// template may no longer exist; ok is false then.
type CaptureSettingsResolver interface {
	ResolveCaptureSettings(templateID string, kind InputType) (settings CaptureSettings, ok bool)
}

// ResolverFunc adapts a function to CaptureSettingsResolver.
type ResolverFunc func(templateID string, kind InputType) (CaptureSettings, bool)

// ResolveCaptureSettings calls f.
func (f ResolverFunc) ResolveCaptureSettings(templateID string, kind InputType) (CaptureSettings, bool) {
	return f(templateID, kind)
}

// Artifact references a captured file owned by the atom.
type Artifact struct {
	ID          string        `json:"id"`
	Path        string        `json:"path"`
	ContentType string        `json:"content_type,omitempty"`
	CapturedAt  time.Time     `json:"captured_at"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Media is a photo, video or audio capture.
//
//	pending -> capturing -> captured (terminal)
//	                     -> failed -> pending (Retry, unlimited)
type Media struct {
	kind     InputType
	phase    CapturePhase
	settings *CaptureSettings
	artifact *Artifact
	failure  string
	attempts int
}

// NewMedia returns a pending capture of the given kind.
func NewMedia(kind InputType) *Media {
	return &Media{kind: kind, phase: PhasePending}
}

// MediaState is the stored form of a media behavior.
type MediaState struct {
	Phase    CapturePhase
	Settings *CaptureSettings
	Artifact *Artifact
	Failure  string
	Attempts int
}

// RestoreMedia rebuilds a media behavior from stored fields. A captured
// phase without an artifact is not a valid state and reads back as pending.
func RestoreMedia(kind InputType, st MediaState) *Media {
	m := &Media{kind: kind, phase: st.Phase, failure: st.Failure, attempts: st.Attempts}
	if st.Settings != nil {
		s := *st.Settings
		m.settings = &s
	}
	if st.Artifact != nil {
		a := *st.Artifact
		m.artifact = &a
	}
	if m.phase == PhaseCaptured && m.artifact == nil {
		m.phase = PhasePending
	}
	if m.phase != PhaseCaptured {
		m.artifact = nil
	}
	return m
}

func (m *Media) InputType() InputType { return m.kind }
func (m *Media) completed() bool      { return m.phase == PhaseCaptured }
func (m *Media) clone() Behavior {
	cp := *m
	if m.settings != nil {
		s := *m.settings
		cp.settings = &s
	}
	if m.artifact != nil {
		a := *m.artifact
		cp.artifact = &a
	}
	return &cp
}

// Phase returns the capture phase.
func (m *Media) Phase() CapturePhase { return m.phase }

// Artifact returns the captured artifact, present only once captured.
func (m *Media) Artifact() (Artifact, bool) {
	if m.artifact == nil {
		return Artifact{}, false
	}
	return *m.artifact, true
}

// Settings returns the settings resolved when capture began.
func (m *Media) Settings() (CaptureSettings, bool) {
	if m.settings == nil {
		return CaptureSettings{}, false
	}
	return *m.settings, true
}

// Failure returns the reason of the last failed capture.
func (m *Media) Failure() string { return m.failure }

// Attempts counts how many captures have been started.
func (m *Media) Attempts() int { return m.attempts }

// begin moves pending -> capturing with the given settings.
func (m *Media) begin(settings CaptureSettings) bool {
	if m.phase != PhasePending {
		return false
	}
	m.settings = &settings
	m.phase = PhaseCapturing
	m.failure = ""
	m.attempts++
	return true
}

// Complete moves capturing -> captured.
func (m *Media) Complete(artifact Artifact) bool {
	if m.phase != PhaseCapturing {
		return false
	}
	m.artifact = &artifact
	m.phase = PhaseCaptured
	return true
}

// Fail moves capturing -> failed.
func (m *Media) Fail(reason string) bool {
	if m.phase != PhaseCapturing {
		return false
	}
	m.phase = PhaseFailed
	m.failure = reason
	return true
}

// Retry moves failed -> pending.
func (m *Media) Retry() bool {
	if m.phase != PhaseFailed {
		return false
	}
	m.phase = PhasePending
	return true
}

// resolveCaptureSettings picks the template override when it resolves to
// settings for the right kind, else the type default. It never blocks on a
// missing template.
func resolveCaptureSettings(templateID string, kind InputType, r CaptureSettingsResolver) CaptureSettings {
	if templateID != "" && r != nil {
		if s, ok := r.ResolveCaptureSettings(templateID, kind); ok {
			if s.Kind == "" {
				s.Kind = kind
			}
			if s.Kind == kind {
				return s
			}
		}
	}
	return DefaultCaptureSettings(kind)
}
