// Package replay runs transcript scripts through a voice controller on a
// simulated clock. Scripts are line oriented:
//
//	start
//	partial next
//	wait 800ms
//	final how long do I rest the chicken
//	tts on
//	tts off
//	error network dropped
//	tick
//	silence
//	pause
//	resume
//	stop [graceful]
//
// Blank lines and lines starting with # are ignored.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Op is a script instruction
type Op string

const (
	OpStart   Op = "start"
	OpStop    Op = "stop"
	OpPause   Op = "pause"
	OpResume  Op = "resume"
	OpPartial Op = "partial"
	OpFinal   Op = "final"
	OpError   Op = "error"
	OpSilence Op = "silence"
	OpWait    Op = "wait"
	OpTick    Op = "tick"
	OpTTS     Op = "tts"
)

// Step is one parsed script line
type Step struct {
	Line int
	Op   Op
	Text string
	Wait time.Duration
	// On is the gate value for OpTTS and the graceful flag for OpStop
	On bool
}

func (s Step) String() string {
	switch s.Op {
	case OpPartial, OpFinal, OpError:
		return fmt.Sprintf("%s %q", s.Op, s.Text)
	case OpWait:
		return fmt.Sprintf("wait %s", s.Wait)
	case OpTTS:
		if s.On {
			return "tts on"
		}
		return "tts off"
	case OpStop:
		if s.On {
			return "stop graceful"
		}
	}
	return string(s.Op)
}

// SyntaxError reports an unparseable script line
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ParseFile parses the script at path
func ParseFile(path string) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a script
func Parse(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		step, err := parseLine(line, text)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return steps, nil
}

func parseLine(line int, text string) (Step, error) {
	word, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	step := Step{Line: line, Op: Op(strings.ToLower(word))}

	switch step.Op {
	case OpStart, OpPause, OpResume, OpTick, OpSilence:
		if rest != "" {
			return step, &SyntaxError{Line: line, Msg: fmt.Sprintf("%s takes no argument", step.Op)}
		}
	case OpStop:
		switch rest {
		case "":
		case "graceful":
			step.On = true
		default:
			return step, &SyntaxError{Line: line, Msg: fmt.Sprintf("unknown stop mode %q", rest)}
		}
	case OpPartial, OpFinal:
		// an empty transcript is a valid recognizer result
		step.Text = rest
	case OpError:
		if rest == "" {
			rest = "recognition failed"
		}
		step.Text = rest
	case OpWait:
		d, err := time.ParseDuration(rest)
		if err != nil || d < 0 {
			return step, &SyntaxError{Line: line, Msg: fmt.Sprintf("invalid duration %q", rest)}
		}
		step.Wait = d
	case OpTTS:
		switch strings.ToLower(rest) {
		case "on":
			step.On = true
		case "off":
		default:
			return step, &SyntaxError{Line: line, Msg: "tts takes on or off"}
		}
	default:
		return step, &SyntaxError{Line: line, Msg: fmt.Sprintf("unknown instruction %q", word)}
	}
	return step, nil
}
