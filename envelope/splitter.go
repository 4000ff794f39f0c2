package envelope

import "strings"

// Splitter turns a streaming envelope buffer into display-text deltas.
//
// Feed each accumulated buffer snapshot in order; Delta returns only the
// text not yet emitted, so the concatenation of all deltas equals the
// primary field's final value (plus any prose the model produced before
// the opening brace). The emitted string never shrinks.
type Splitter struct {
	primary string
	emitted int
}

// NewSplitter returns a splitter for envelopes whose primary field has the
// given name ("response" or "message").
func NewSplitter(primary string) *Splitter {
	return &Splitter{primary: primary}
}

// Delta returns the next unseen portion of the display text given the full
// buffer accumulated so far. Returns "" when nothing new is displayable.
func (sp *Splitter) Delta(buf string) string {
	display := sp.displayText(buf)
	if len(display) <= sp.emitted {
		return ""
	}
	delta := display[sp.emitted:]
	sp.emitted = len(display)
	return delta
}

// Emitted returns the display text produced so far.
func (sp *Splitter) Emitted(buf string) string {
	return sp.displayText(buf)[:sp.emitted]
}

// displayText flattens the buffer to what a user should see: prose before
// the envelope verbatim, then the primary field's (possibly unterminated)
// string value.
func (sp *Splitter) displayText(buf string) string {
	brace := strings.IndexByte(buf, '{')
	if brace < 0 {
		// Pure prose so far. Hold back a trailing run of whitespace in
		// case the next chunk opens the envelope.
		return strings.TrimRight(buf, " \t\n")
	}
	prose := strings.TrimSpace(buf[:brace])
	val, ok := salvageField(buf[brace:], sp.primary)
	if !ok {
		return prose
	}
	if prose == "" {
		return val
	}
	return prose + "\n" + val
}
