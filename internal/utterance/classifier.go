package utterance

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// CommandKind is a discrete navigation command spoken by the user
type CommandKind int

const (
	CommandNext CommandKind = iota + 1
	CommandPrevious
	CommandRepeat
)

// String returns the wire name of the command
func (k CommandKind) String() string {
	switch k {
	case CommandNext:
		return "next"
	case CommandPrevious:
		return "previous"
	case CommandRepeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// MarshalText encodes the command by name so it can be used in JSON payloads
func (k CommandKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var (
	// questionStarters are first words that make an utterance a question
	questionStarters = map[string]struct{}{
		"how": {}, "what": {}, "when": {}, "where": {}, "why": {}, "who": {},
		"is": {}, "are": {}, "do": {}, "does": {}, "did": {},
		"can": {}, "could": {}, "should": {}, "would": {}, "will": {},
		"may": {}, "might": {},
	}

	// questionCues are phrases that make an utterance a question wherever they appear
	questionCues = []string{
		"how many",
		"how much",
		"what is",
		"what's",
		"convert",
		"need to",
		"do i",
		"does it",
	}

	commandWords = map[string]struct{}{
		"next": {}, "previous": {}, "back": {}, "repeat": {},
	}

	fillerWords = map[string]struct{}{
		"step": {}, "please": {}, "now": {}, "the": {}, "a": {}, "an": {},
	}

	// commandMarkers maps spoken words to commands for ExtractCommand
	commandMarkers = []struct {
		word string
		kind CommandKind
	}{
		{"next", CommandNext},
		{"previous", CommandPrevious},
		{"back", CommandPrevious},
		{"repeat", CommandRepeat},
	}
)

// Classification is the result of classifying one transcript fragment
type Classification struct {
	Question    bool
	CommandLike bool
	// Command is only meaningful when HasCommand is true
	Command    CommandKind
	HasCommand bool
}

// Classify decides whether a fragment is a question, a bare command, or plain speech.
// A command is reported only for fragments that are command-like and not question-like.
func Classify(text string) Classification {
	c := Classification{
		Question:    IsQuestionLike(text),
		CommandLike: IsLikelyCommand(text),
	}
	if c.CommandLike && !c.Question {
		c.Command, c.HasCommand = ExtractCommand(text)
	}
	return c
}

// IsQuestionLike reports whether text reads like a question
func IsQuestionLike(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}

	lower := fold(strings.TrimSpace(text))
	if fields := strings.Fields(lower); len(fields) > 0 {
		if _, ok := questionStarters[fields[0]]; ok {
			return true
		}
	}

	for _, cue := range questionCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// IsLikelyCommand reports whether text is a bare navigation command such as
// "next", "back please" or "go back". It is a strict prefix grammar: the
// command word must lead the utterance (optionally after "go") and every
// following token must be filler or another command word.
func IsLikelyCommand(text string) bool {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return false
	}

	rest := tokens[1:]
	if _, ok := commandWords[tokens[0]]; !ok {
		if tokens[0] != "go" || len(tokens) < 2 {
			return false
		}
		if _, ok := commandWords[tokens[1]]; !ok {
			return false
		}
		rest = tokens[2:]
	}

	for _, tok := range rest {
		if _, ok := fillerWords[tok]; ok {
			continue
		}
		if _, ok := commandWords[tok]; ok {
			continue
		}
		return false
	}
	return true
}

// ExtractCommand returns the command whose word occurs last in text. Partial
// hypotheses grow over time, so the rightmost command word is the most recently spoken.
func ExtractCommand(text string) (CommandKind, bool) {
	lower := fold(text)

	best := -1
	var kind CommandKind
	for _, m := range commandMarkers {
		if idx := strings.LastIndex(lower, m.word); idx > best {
			best = idx
			kind = m.kind
		}
	}
	if best < 0 {
		return 0, false
	}
	return kind, true
}

// curly apostrophes some recognizers emit in contractions
var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'")

// fold case-folds text and straightens apostrophes so "What’s" matches "what's"
func fold(text string) string {
	return apostrophes.Replace(cases.Fold().String(text))
}

// tokenize folds text, splits on whitespace and strips surrounding
// punctuation that recognizers add ("Next." or "back,").
func tokenize(text string) []string {
	fields := strings.Fields(fold(text))
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, unicode.IsPunct)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
