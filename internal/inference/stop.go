package inference

import "strings"

// stopDetector watches generated output for the configured stop string.
// Only the first configured stop string is checked, both as a decoded
// text suffix and as a raw token sequence; this mirrors the historical
// behavior and is kept as a documented limitation.
type stopDetector struct {
	text   string
	tokens []int
}

func newStopDetector(text string, tokens []int) stopDetector {
	return stopDetector{text: text, tokens: tokens}
}

// textHit reports whether the decoded history ends with the stop string.
func (d stopDetector) textHit(decoded string) bool {
	return d.text != "" && strings.HasSuffix(decoded, d.text)
}

// observe compares the tokens generated this turn against the
// pre-tokenized stop sequence. stop is true on an exact length match;
// tentative is true while pending is a strict element-wise prefix, meaning
// the tokens must be withheld from the stream until disproven.
func (d stopDetector) observe(pending []int) (stop, tentative bool) {
	if d.text == "" || len(d.tokens) == 0 || len(pending) > len(d.tokens) {
		return false, false
	}
	for i, tok := range pending {
		if tok != d.tokens[i] {
			return false, false
		}
	}
	if len(pending) == len(d.tokens) {
		return true, false
	}
	return false, true
}
