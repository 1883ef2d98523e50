// Package directive finds the bracketed control tags participants embed in
// their replies, such as [YIELD] or [KNOWLEDGE_GAP: topic].
package directive

import (
	"regexp"
	"strings"
)

// Kind names a directive tag.
type Kind string

const (
	KindYield             Kind = "YIELD"
	KindKnowledgeGap      Kind = "KNOWLEDGE_GAP"
	KindGenerateImage     Kind = "GENERATE_IMAGE"
	KindDisagree          Kind = "DISAGREE"
	KindVoteNeeded        Kind = "VOTE_NEEDED"
	KindSuggestRoles      Kind = "SUGGEST_ROLES"
	KindUpdateCanvas      Kind = "UPDATE_CANVAS"
	KindProposeRoleChange Kind = "PROPOSE_ROLE_CHANGE"
)

// Directive is one tag found in a reply. Start and End are byte offsets of
// the whole tag in the parsed text, so text[Start:End] == Raw.
type Directive struct {
	Kind    Kind
	Payload string
	Start   int
	End     int
	Raw     string
}

var head = regexp.MustCompile(`\[(YIELD|KNOWLEDGE_GAP|GENERATE_IMAGE|DISAGREE|VOTE_NEEDED|SUGGEST_ROLES|UPDATE_CANVAS|PROPOSE_ROLE_CHANGE)(\]|:)`)

// Parse returns every well-formed directive in text, in order of appearance.
//
// YIELD takes no payload. Every other kind needs ": payload]" where the
// payload runs to the first unescaped "]"; "\]" and "\\" are unescaped in
// Payload. A PROPOSE_ROLE_CHANGE payload starting with "{" is read as a
// balanced JSON object so brackets inside strings do not end it. Tags with
// no closing bracket are ignored.
func Parse(text string) []Directive {
	var out []Directive
	pos := 0
	for pos < len(text) {
		loc := head.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		kind := Kind(text[pos+loc[2] : pos+loc[3]])
		sep := text[pos+loc[4] : pos+loc[5]]
		after := pos + loc[1]

		var (
			payload string
			end     int
			ok      bool
		)
		switch {
		case kind == KindYield && sep == "]":
			end, ok = after, true
		case kind == KindYield || sep == "]":
			ok = false
		case kind == KindProposeRoleChange:
			payload, end, ok = scanJSONPayload(text, after)
			if !ok {
				payload, end, ok = scanPayload(text, after)
			}
		default:
			payload, end, ok = scanPayload(text, after)
		}

		if !ok {
			pos = start + 1
			continue
		}
		out = append(out, Directive{
			Kind:    kind,
			Payload: strings.TrimSpace(payload),
			Start:   start,
			End:     end,
			Raw:     text[start:end],
		})
		pos = end
	}
	return out
}

// scanPayload reads up to the first unescaped ']' starting at i and returns
// the unescaped payload and the offset just past the bracket.
func scanPayload(text string, i int) (string, int, bool) {
	var b strings.Builder
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text) && (text[i+1] == ']' || text[i+1] == '\\'):
			b.WriteByte(text[i+1])
			i += 2
		case c == ']':
			return b.String(), i + 1, true
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, false
}

// scanJSONPayload reads optional whitespace, a balanced {...} object and the
// closing ']'.
func scanJSONPayload(text string, i int) (string, int, bool) {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	if i >= len(text) || text[i] != '{' {
		return "", 0, false
	}
	start := i
	depth := 0
	inString := false
	for ; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
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
				obj := text[start : i+1]
				j := i + 1
				for j < len(text) && isSpace(text[j]) {
					j++
				}
				if j < len(text) && text[j] == ']' {
					return obj, j + 1, true
				}
				return "", 0, false
			}
		}
	}
	return "", 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// First returns the first directive of kind.
func First(ds []Directive, kind Kind) (Directive, bool) {
	for _, d := range ds {
		if d.Kind == kind {
			return d, true
		}
	}
	return Directive{}, false
}

// Has reports whether any directive of kind is present.
func Has(ds []Directive, kind Kind) bool {
	_, ok := First(ds, kind)
	return ok
}

// Replace rewrites text, substituting each directive for which fn returns
// true. ds must come from Parse(text).
func Replace(text string, ds []Directive, fn func(Directive) (string, bool)) string {
	if len(ds) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, d := range ds {
		repl, ok := fn(d)
		if !ok {
			continue
		}
		b.WriteString(text[last:d.Start])
		b.WriteString(repl)
		last = d.End
	}
	b.WriteString(text[last:])
	return b.String()
}
