// Package envelope parses the structured JSON objects interview models are
// instructed to emit. Model output is never trusted to be well-formed: the
// parser repairs common defects, extracts the envelope out of surrounding
// prose, and as a last resort salvages the primary display field with a
// regex. It also supports incremental extraction of the display text while
// the envelope is still streaming.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrPartial is returned when no envelope, not even a salvageable primary
// field, can be recovered from the buffer.
var ErrPartial = errors.New("envelope: no parseable envelope in buffer")

// Interviewer is the envelope emitted during the question/answer loop.
type Interviewer struct {
	Response            string `json:"response"`
	QuestionNumber      int    `json:"questionNumber"`
	IsInterviewComplete bool   `json:"isInterviewComplete"`
}

// Coordinator is the envelope emitted by the setup conversation. READY
// flips true only once role, focus area and level are all known.
type Coordinator struct {
	Message   string `json:"message"`
	Ready     bool   `json:"READY"`
	Role      string `json:"role,omitempty"`
	FocusArea string `json:"focusArea,omitempty"`
	Level     string `json:"level,omitempty"`
}

// ParseInterviewer recovers an interviewer envelope from a complete model
// buffer. When only the primary field can be salvaged, the control fields
// are zero and the caller decides how to proceed.
func ParseInterviewer(buf string) (Interviewer, error) {
	var env Interviewer
	if err := parseTolerant(buf, "response", &env); err != nil {
		return Interviewer{}, err
	}
	return env, nil
}

// ParseCoordinator recovers a coordinator envelope from a complete model
// buffer.
func ParseCoordinator(buf string) (Coordinator, error) {
	var env Coordinator
	if err := parseTolerant(buf, "message", &env); err != nil {
		return Coordinator{}, err
	}
	return env, nil
}

// parseTolerant tries, in order: the whole buffer as JSON (repaired on
// syntax error), the outermost brace-balanced object, and finally a regex
// salvage of the primary field alone.
func parseTolerant(buf, primary string, out any) error {
	trimmed := strings.TrimSpace(buf)
	if trimmed == "" {
		return ErrPartial
	}

	if err := unmarshalRepaired(trimmed, out); err == nil {
		return nil
	}

	if obj, ok := outermostObject(trimmed); ok {
		if err := unmarshalRepaired(obj, out); err == nil {
			return nil
		}
	}

	if val, ok := salvageField(trimmed, primary); ok {
		partial := fmt.Sprintf("{%q: %q}", primary, val)
		if err := json.Unmarshal([]byte(partial), out); err == nil {
			return nil
		}
	}
	return ErrPartial
}

func unmarshalRepaired(s string, out any) error {
	err := json.Unmarshal([]byte(s), out)
	if err == nil {
		return nil
	}
	repaired, rerr := jsonrepair.JSONRepair(s)
	if rerr != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), out)
}

// outermostObject returns the first brace-balanced {...} region, honoring
// JSON string literals and escapes so braces inside values do not confuse
// the scan.
func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

var fieldPatterns = map[string]*regexp.Regexp{
	"response": compileFieldPattern("response"),
	"message":  compileFieldPattern("message"),
}

func compileFieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*"((?:[^"\\]|\\.)*)`)
}

func fieldPattern(name string) *regexp.Regexp {
	if re, ok := fieldPatterns[name]; ok {
		return re
	}
	return compileFieldPattern(name)
}

// salvageField pulls the raw (possibly unterminated) string value of a
// field out of a broken buffer and unescapes it.
func salvageField(s, name string) (string, bool) {
	m := fieldPattern(name).FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return unescapePartial(m[1]), true
}

// unescapePartial decodes JSON string escapes in a value that may be cut
// off mid-escape. A dangling backslash or truncated \uXXXX is dropped
// rather than emitted verbatim.
func unescapePartial(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			break
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"', '\\', '/':
			b.WriteByte(s[i])
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 >= len(s) {
				return b.String()
			}
			var r rune
			if _, err := fmt.Sscanf(s[i+1:i+5], "%04x", &r); err == nil {
				b.WriteRune(r)
			}
			i += 4
		}
	}
	return b.String()
}
