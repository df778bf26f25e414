// Package status maps the supervisor state onto a colour code, drives an
// optional indicator and publishes the current code for other goroutines.
package status

import (
	"fmt"
	"sync/atomic"
)

// State is the supervisor's connectivity state.
type State int32

const (
	LinkDown State = iota
	LinkUpSessionDown
	SessionUp
)

// String returns the state name used in logs and the journal.
func (s State) String() string {
	switch s {
	case LinkDown:
		return "link_down"
	case LinkUpSessionDown:
		return "link_up_session_down"
	case SessionUp:
		return "session_up"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Code is an indicator colour.
type Code uint8

const (
	Off Code = iota
	Cyan
	Red
	Yellow
	Green
)

var codeRGB = [...][3]uint8{
	Off:    {0, 0, 0},
	Cyan:   {0, 255, 255},
	Red:    {255, 0, 0},
	Yellow: {255, 255, 0},
	Green:  {0, 255, 0},
}

var codeNames = [...]string{
	Off:    "off",
	Cyan:   "cyan",
	Red:    "red",
	Yellow: "yellow",
	Green:  "green",
}

// RGB returns the colour components.
func (c Code) RGB() (r, g, b uint8) {
	if int(c) >= len(codeRGB) {
		return 0, 0, 0
	}
	rgb := codeRGB[c]
	return rgb[0], rgb[1], rgb[2]
}

// Packed returns the colour as 0xRRGGBB.
func (c Code) Packed() uint32 {
	r, g, b := c.RGB()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func (c Code) String() string {
	if int(c) >= len(codeNames) {
		return fmt.Sprintf("code(%d)", uint8(c))
	}
	return codeNames[c]
}

// ForState returns the code for a supervisor state.
func ForState(s State) Code {
	switch s {
	case SessionUp:
		return Green
	case LinkUpSessionDown:
		return Yellow
	default:
		return Red
	}
}

// Indicator is a physical status light.
type Indicator interface {
	SetColor(r, g, b uint8)
}

// Reporter publishes status codes.
type Reporter struct {
	indicator Indicator
	code      atomic.Uint32
	packed    atomic.Uint32
}

// NewReporter creates a reporter. indicator may be nil.
func NewReporter(indicator Indicator) *Reporter {
	return &Reporter{indicator: indicator}
}

// Report maps state to a code, sets the indicator once and publishes the
// code.
func (r *Reporter) Report(s State) Code {
	code := ForState(s)
	r.Set(code)
	return code
}

// Set publishes an explicit code, such as Cyan during boot.
func (r *Reporter) Set(code Code) {
	if r.indicator != nil {
		r.indicator.SetColor(code.RGB())
	}
	r.code.Store(uint32(code))
	r.packed.Store(code.Packed())
}

// Current returns the last published code. Safe from any goroutine.
func (r *Reporter) Current() Code {
	return Code(r.code.Load())
}

// Packed returns the last published colour as 0xRRGGBB.
func (r *Reporter) Packed() uint32 {
	return r.packed.Load()
}
