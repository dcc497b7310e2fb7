package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidScript is returned when a scripted input string cannot be parsed
var ErrInvalidScript = errors.New("invalid input script")

// Step holds one set of signals for a number of ticks.
type Step struct {
	Signals Signals
	Ticks   int
}

// Script replays a fixed sequence of signals, one Poll per tick. It stands in
// for keyboard polling in headless runs and tests.
type Script struct {
	steps []Step
	loop  bool

	step int
	tick int
}

// NewScript creates a script from steps. If loop is set, the script restarts
// after the last step instead of finishing.
func NewScript(steps []Step, loop bool) *Script {
	return &Script{steps: steps, loop: loop}
}

// ParseScript parses a comma-separated list of "signal[+signal]:ticks" steps,
// for example "accelerate:120,accelerate+left:45,coast:30".
func ParseScript(s string, loop bool) (*Script, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty script", ErrInvalidScript)
	}

	var steps []Step
	for _, raw := range strings.Split(s, ",") {
		name, count, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			return nil, fmt.Errorf("%w: step %q has no tick count", ErrInvalidScript, raw)
		}
		ticks, err := strconv.Atoi(count)
		if err != nil || ticks <= 0 {
			return nil, fmt.Errorf("%w: step %q has bad tick count", ErrInvalidScript, raw)
		}

		var sig Signals
		for _, part := range strings.Split(name, "+") {
			switch strings.ToLower(strings.TrimSpace(part)) {
			case "accelerate", "up":
				sig.Accelerate = true
			case "brake", "down":
				sig.Brake = true
			case "left":
				sig.Left = true
			case "right":
				sig.Right = true
			case "hardbrake", "space":
				sig.HardBrake = true
			case "coast", "none":
			default:
				return nil, fmt.Errorf("%w: unknown signal %q", ErrInvalidScript, part)
			}
		}
		steps = append(steps, Step{Signals: sig, Ticks: ticks})
	}

	return NewScript(steps, loop), nil
}

// Poll returns the signals for the current tick and advances. ok is false
// once a non-looping script is exhausted.
func (s *Script) Poll() (sig Signals, ok bool) {
	if s.step >= len(s.steps) {
		if !s.loop || len(s.steps) == 0 {
			return Signals{}, false
		}
		s.step = 0
	}

	cur := s.steps[s.step]
	s.tick++
	if s.tick >= cur.Ticks {
		s.tick = 0
		s.step++
	}
	return cur.Signals, true
}

// Len returns the total number of ticks in one pass of the script.
func (s *Script) Len() int {
	n := 0
	for _, st := range s.steps {
		n += st.Ticks
	}
	return n
}
