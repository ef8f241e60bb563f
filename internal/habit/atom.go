package habit

// Atom is one trackable task inside a Molecule.
//
// SourceTemplateID is a weak reference: it is only used to look up capture
// overrides and may point at a template that no longer exists.
type Atom struct {
	ID               string
	MoleculeID       string
	Title            string
	Position         int
	Unit             string
	SourceTemplateID string

	behavior Behavior
}

// NewAtom creates an atom with the given behavior. A nil behavior makes a
// binary atom.
func NewAtom(id, title string, b Behavior) *Atom {
	if b == nil {
		b = &Binary{}
	}
	return &Atom{ID: id, Title: title, behavior: b}
}

// Behavior returns the atom's semantics. Callers may type-switch on it to
// read state; mutate through the Atom methods so transitions are reported.
func (a *Atom) Behavior() Behavior { return a.behavior }

// InputType returns the type selected by the atom's behavior.
func (a *Atom) InputType() InputType {
	if a.behavior == nil {
		return InputBinary
	}
	return a.behavior.InputType()
}

// IsCompleted is recomputed from the behavior on every call.
func (a *Atom) IsCompleted() bool {
	if a.behavior == nil {
		return false
	}
	return a.behavior.completed()
}

// CurrentValue returns the counter/value accumulator.
func (a *Atom) CurrentValue() (float64, bool) {
	switch b := a.behavior.(type) {
	case *Counter:
		return b.Current(), true
	case *Value:
		return b.Current()
	case *Binary, *Media:
		return 0, false
	}
	return 0, false
}

// TargetValue returns the counter/value goal.
func (a *Atom) TargetValue() (float64, bool) {
	switch b := a.behavior.(type) {
	case *Counter:
		return b.Target()
	case *Value:
		return b.Target()
	case *Binary, *Media:
		return 0, false
	}
	return 0, false
}

// Clone returns a deep copy.
func (a *Atom) Clone() *Atom {
	cp := *a
	if a.behavior != nil {
		cp.behavior = a.behavior.clone()
	}
	return &cp
}

// Toggle flips a binary atom. Other types return false.
func (a *Atom) Toggle() bool {
	if b, ok := a.behavior.(*Binary); ok {
		return b.Toggle()
	}
	return false
}

// Increment adds one step to a counter atom.
func (a *Atom) Increment() bool {
	if c, ok := a.behavior.(*Counter); ok {
		return c.Increment()
	}
	return false
}

// Decrement removes one step from a counter atom, never going below 0.
func (a *Atom) Decrement() bool {
	if c, ok := a.behavior.(*Counter); ok {
		return c.Decrement()
	}
	return false
}

// SetValue stores a parsed number on a value atom. Non-numeric input is
// ignored.
func (a *Atom) SetValue(input string) bool {
	if v, ok := a.behavior.(*Value); ok {
		return v.SetValue(input)
	}
	return false
}

// BeginCapture resolves capture settings and moves a pending media atom to
// capturing. The resolver may be nil.
func (a *Atom) BeginCapture(r CaptureSettingsResolver) (CaptureSettings, bool) {
	m, ok := a.behavior.(*Media)
	if !ok {
		return CaptureSettings{}, false
	}
	settings := resolveCaptureSettings(a.SourceTemplateID, m.kind, r)
	if !m.begin(settings) {
		return CaptureSettings{}, false
	}
	return settings, true
}

// CompleteCapture attaches the artifact of a successful capture.
func (a *Atom) CompleteCapture(artifact Artifact) bool {
	if m, ok := a.behavior.(*Media); ok {
		return m.Complete(artifact)
	}
	return false
}

// FailCapture records a failed capture.
func (a *Atom) FailCapture(reason string) bool {
	if m, ok := a.behavior.(*Media); ok {
		return m.Fail(reason)
	}
	return false
}

// RetryCapture returns a failed media atom to pending.
func (a *Atom) RetryCapture() bool {
	if m, ok := a.behavior.(*Media); ok {
		return m.Retry()
	}
	return false
}
