package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError reports a model reply that could not be parsed into the
// expected shape. Callers retry the same request a bounded number of times.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier: decode reply: %v: %q", e.Err, e.Raw)
	}
	return fmt.Sprintf("classifier: decode reply: %q", e.Raw)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// parseRanking decodes the ranking reply. The output field may be either a
// JSON string array or a string holding a list literal; both forms occur.
func parseRanking(text string) (*Ranking, error) {
	s := strings.TrimSpace(text)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return nil, &DecodeError{Raw: text}
	}

	var raw struct {
		Output  json.RawMessage `json:"output"`
		Reason  string          `json:"reason"`
		Unknown string          `json:"unknown"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
		return nil, &DecodeError{Raw: text, Err: err}
	}

	ranking := &Ranking{Reason: raw.Reason, Unknown: raw.Unknown}
	if len(raw.Output) == 0 {
		return ranking, nil
	}

	var arr []string
	if err := json.Unmarshal(raw.Output, &arr); err == nil {
		ranking.Concepts = arr
		return ranking, nil
	}

	var str string
	if err := json.Unmarshal(raw.Output, &str); err != nil {
		return nil, &DecodeError{Raw: text, Err: err}
	}
	items, err := parseList(str)
	if err != nil {
		return nil, &DecodeError{Raw: text}
	}
	ranking.Concepts = items
	return ranking, nil
}

// parseList decodes a list literal like ['a', 'b'] or ["a", "b"]. Bare
// unquoted items are tolerated.
func parseList(text string) ([]string, error) {
	s := strings.TrimSpace(text)
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start == -1 || end < start {
		return nil, &DecodeError{Raw: text}
	}

	var items []string
	var cur strings.Builder
	var quote rune
	flush := func() {
		if item := strings.TrimSpace(cur.String()); item != "" {
			items = append(items, item)
		}
		cur.Reset()
	}
	for _, r := range s[start+1 : end] {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ',':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, &DecodeError{Raw: text}
	}
	flush()
	return items, nil
}
