package status

import (
	"fmt"
	"testing"
)

type recordingIndicator struct {
	colors [][3]uint8
}

func (r *recordingIndicator) SetColor(red, green, blue uint8) {
	r.colors = append(r.colors, [3]uint8{red, green, blue})
}

func TestForState(t *testing.T) {
	tests := []struct {
		state State
		want  Code
	}{
		{LinkDown, Red},
		{LinkUpSessionDown, Yellow},
		{SessionUp, Green},
		{State(99), Red},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := ForState(tt.state); got != tt.want {
				t.Errorf("ForState(%v) = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestCodePacked(t *testing.T) {
	tests := []struct {
		code Code
		want uint32
	}{
		{Off, 0x000000},
		{Cyan, 0x00FFFF},
		{Red, 0xFF0000},
		{Yellow, 0xFFFF00},
		{Green, 0x00FF00},
	}
	for _, tt := range tests {
		if got := tt.code.Packed(); got != tt.want {
			t.Errorf("%v.Packed() = %06X, want %06X", tt.code, got, tt.want)
		}
	}
}

func TestReporterDrivesIndicatorOncePerReport(t *testing.T) {
	ind := &recordingIndicator{}
	r := NewReporter(ind)

	r.Set(Cyan)
	for _, s := range []State{LinkDown, LinkDown, LinkUpSessionDown, SessionUp} {
		r.Report(s)
	}

	want := [][3]uint8{{0, 255, 255}, {255, 0, 0}, {255, 0, 0}, {255, 255, 0}, {0, 255, 0}}
	if fmt.Sprint(ind.colors) != fmt.Sprint(want) {
		t.Errorf("indicator calls = %v, want %v", ind.colors, want)
	}
	if r.Current() != Green {
		t.Errorf("Current() = %v, want green", r.Current())
	}
	if r.Packed() != 0x00FF00 {
		t.Errorf("Packed() = %06X", r.Packed())
	}
}

func TestReporterWithoutIndicator(t *testing.T) {
	r := NewReporter(nil)
	if got := r.Report(LinkUpSessionDown); got != Yellow {
		t.Errorf("Report() = %v, want yellow", got)
	}
	if r.Current() != Yellow {
		t.Errorf("Current() = %v", r.Current())
	}
}

type countingLogger struct{ n int }

func (c *countingLogger) Info(string, ...any) { c.n++ }

func TestLogIndicatorSkipsRepeats(t *testing.T) {
	logger := &countingLogger{}
	ind := NewLogIndicator(logger)

	ind.SetColor(Red.RGB())
	ind.SetColor(Red.RGB())
	ind.SetColor(Green.RGB())

	if logger.n != 2 {
		t.Errorf("logged %d times, want 2", logger.n)
	}
}
