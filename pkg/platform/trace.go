package platform

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// StateTransition is one scheduled power transition from a host state trace
type StateTransition struct {
	Time float64
	On   bool
}

// StateTrace is a parsed host state trace. The grammar is
//
//	PERIODICITY <p>
//	<t> <0|1>
//	...
//
// where 1 means ON and 0 means OFF, and the schedule repeats every p
// virtual seconds.
type StateTrace struct {
	Periodicity float64
	Transitions []StateTransition
}

// ParseStateTrace parses the state trace grammar from a string
func ParseStateTrace(content string) (*StateTrace, error) {
	sc := bufio.NewScanner(strings.NewReader(content))
	trace := &StateTrace{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == "PERIODICITY" {
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: PERIODICITY takes one value", lineNo)
			}
			p, err := strconv.ParseFloat(fields[1], 64)
			if err != nil || p <= 0 {
				return nil, fmt.Errorf("line %d: bad periodicity %q", lineNo, fields[1])
			}
			trace.Periodicity = p
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected \"<t> <0|1>\"", lineNo)
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil || t < 0 {
			return nil, fmt.Errorf("line %d: bad timestamp %q", lineNo, fields[0])
		}
		var on bool
		switch fields[1] {
		case "0":
			on = false
		case "1":
			on = true
		default:
			return nil, fmt.Errorf("line %d: state must be 0 or 1, got %q", lineNo, fields[1])
		}
		trace.Transitions = append(trace.Transitions, StateTransition{Time: t, On: on})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if trace.Periodicity == 0 {
		return nil, fmt.Errorf("state trace has no PERIODICITY header")
	}
	for _, tr := range trace.Transitions {
		if tr.Time > trace.Periodicity {
			return nil, fmt.Errorf("transition at %g exceeds periodicity %g", tr.Time, trace.Periodicity)
		}
	}
	return trace, nil
}

// Schedule expands the trace over the given number of periods. Quiescence
// requires a finite replay: the kernel stops when no event remains, so the
// trace cannot repeat forever.
func (t *StateTrace) Schedule(periods int) []StateTransition {
	if periods < 1 {
		periods = 1
	}
	var out []StateTransition
	for p := 0; p < periods; p++ {
		offset := float64(p) * t.Periodicity
		for _, tr := range t.Transitions {
			out = append(out, StateTransition{Time: offset + tr.Time, On: tr.On})
		}
	}
	return out
}
