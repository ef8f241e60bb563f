package habit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// InputType identifies how an atom is tracked.
type InputType string

const (
	InputBinary  InputType = "binary"
	InputCounter InputType = "counter"
	InputValue   InputType = "value"
	InputPhoto   InputType = "photo"
	InputVideo   InputType = "video"
	InputAudio   InputType = "audio"
)

// InputTypes lists every input type in authoring order.
var InputTypes = []InputType{InputBinary, InputCounter, InputValue, InputPhoto, InputVideo, InputAudio}

// IsMedia reports whether t is a capture type.
func (t InputType) IsMedia() bool {
	switch t {
	case InputPhoto, InputVideo, InputAudio:
		return true
	}
	return false
}

// ParseInputType validates s.
func ParseInputType(s string) (InputType, error) {
	t := InputType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range InputTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown input type %q", s)
}

// Behavior is the closed set of atom semantics. The unexported methods seal
// the interface: only Binary, Counter, Value and Media implement it, and
// every switch over a Behavior in this module handles all four.
type Behavior interface {
	InputType() InputType
	completed() bool
	clone() Behavior
}

// NewBehavior returns the zero-state behavior for t. Counter and value
// behaviors take the optional target.
func NewBehavior(t InputType, target *float64) (Behavior, error) {
	switch t {
	case InputBinary:
		return &Binary{}, nil
	case InputCounter:
		return NewCounter(0, target, 1), nil
	case InputValue:
		return NewValue(nil, target), nil
	case InputPhoto, InputVideo, InputAudio:
		return NewMedia(t), nil
	}
	return nil, fmt.Errorf("unknown input type %q", t)
}

// Binary is a checkbox. It changes only through Toggle.
type Binary struct {
	checked bool
}

// NewBinary returns a binary behavior in the given state.
func NewBinary(checked bool) *Binary { return &Binary{checked: checked} }

func (b *Binary) InputType() InputType { return InputBinary }
func (b *Binary) completed() bool      { return b.checked }
func (b *Binary) clone() Behavior      { c := *b; return &c }

// Checked reports the checkbox state.
func (b *Binary) Checked() bool { return b.checked }

// Toggle flips the checkbox. Toggling twice restores the original state.
func (b *Binary) Toggle() bool {
	b.checked = !b.checked
	return true
}

// Counter accumulates a non-negative count toward an optional target.
// Reaching the target is advisory: the count may exceed it.
type Counter struct {
	current float64
	target  *float64
	step    float64
}

// NewCounter returns a counter. Negative current values are clamped to 0 and
// a non-positive step becomes 1.
func NewCounter(current float64, target *float64, step float64) *Counter {
	if current < 0 || math.IsNaN(current) {
		current = 0
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		step = 1
	}
	return &Counter{current: current, target: copyFloat(target), step: step}
}

func (c *Counter) InputType() InputType { return InputCounter }
func (c *Counter) completed() bool      { return meetsTarget(c.current, true, c.target) }
func (c *Counter) clone() Behavior {
	cp := *c
	cp.target = copyFloat(c.target)
	return &cp
}

// Current returns the accumulated count.
func (c *Counter) Current() float64 { return c.current }

// Target returns the goal, if any.
func (c *Counter) Target() (float64, bool) { return deref(c.target) }

// Step returns the increment size.
func (c *Counter) Step() float64 { return c.step }

// Increment adds one step.
func (c *Counter) Increment() bool {
	c.current += c.step
	return true
}

// Decrement removes one step, clamping at 0. At 0 it is a no-op.
func (c *Counter) Decrement() bool {
	if c.current <= 0 {
		return false
	}
	c.current -= c.step
	if c.current < 0 {
		c.current = 0
	}
	return true
}

// Value holds a single explicitly entered number.
type Value struct {
	current *float64
	target  *float64
}

// NewValue returns a value behavior.
func NewValue(current, target *float64) *Value {
	return &Value{current: copyFloat(current), target: copyFloat(target)}
}

func (v *Value) InputType() InputType { return InputValue }
func (v *Value) completed() bool {
	cur, ok := deref(v.current)
	return meetsTarget(cur, ok, v.target)
}
func (v *Value) clone() Behavior {
	return &Value{current: copyFloat(v.current), target: copyFloat(v.target)}
}

// Current returns the entered value, if any.
func (v *Value) Current() (float64, bool) { return deref(v.current) }

// Target returns the goal, if any.
func (v *Value) Target() (float64, bool) { return deref(v.target) }

// SetValue parses input as a number and stores it. Input that is not a
// finite number leaves the value untouched and returns false.
func (v *Value) SetValue(input string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	v.current = &f
	return true
}

// meetsTarget applies the counter/value completion rule. Without a target any
// positive value counts as done.
func meetsTarget(current float64, present bool, target *float64) bool {
	if !present {
		return false
	}
	if target == nil {
		return current > 0
	}
	return current >= *target
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func deref(f *float64) (float64, bool) {
	if f == nil {
		return 0, false
	}
	return *f, true
}
