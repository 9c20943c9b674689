// Package markup turns raw assistant text into renderable segments. Two
// markups are recognized: bracketed timestamp citations and double-asterisk
// emphasis. The grammar is explicit rather than regex-driven:
//
//	citation block = "[" item ("," item)* "]"
//	item           = timestamp | timestamp "-" timestamp
//	timestamp      = mm ":" ss | hh ":" mm ":" ss
//
// Brackets are matched first in a single left-to-right pass; emphasis is then
// parsed within the plain-text spans that remain. A bracket whose contents do
// not satisfy the grammar is rendered literally, never dropped and never an
// error: message content is the single source of truth and malformed markup
// must stay visually inert.
package markup

import (
	"strconv"
	"strings"
)

type Kind int

const (
	KindPlain Kind = iota
	KindCitation
	KindEmphasis
)

// Segment is one renderable unit of assistant output.
type Segment struct {
	Kind  Kind
	Text  string // plain or emphasis content; the raw label for citations
	Start int    // citation start in seconds
	End   int    // citation range end in seconds; -1 for single timestamps
}

// SeekSeconds is the playback target for a citation. Ranges deliberately seek
// to their start second.
func (s Segment) SeekSeconds() int { return s.Start }

// Render parses text into segments. It never fails; unparseable input
// degrades to plain text.
func Render(text string) []Segment {
	var segments []Segment
	var plain strings.Builder

	flush := func() {
		if plain.Len() == 0 {
			return
		}
		segments = append(segments, parseEmphasis(plain.String())...)
		plain.Reset()
	}

	for i := 0; i < len(text); {
		if text[i] != '[' {
			plain.WriteByte(text[i])
			i++
			continue
		}
		closeAt := strings.IndexByte(text[i:], ']')
		if closeAt < 0 {
			plain.WriteString(text[i:])
			break
		}
		inner := text[i+1 : i+closeAt]
		citations, ok := parseCitationBlock(inner)
		if !ok {
			// Literal bracket, including its contents.
			plain.WriteString(text[i : i+closeAt+1])
			i += closeAt + 1
			continue
		}
		flush()
		segments = append(segments, citations...)
		i += closeAt + 1
	}
	flush()
	return segments
}

// parseCitationBlock parses the inside of a bracket as a comma-separated list
// of timestamps or timestamp ranges. Every item must parse or the whole block
// is rejected.
func parseCitationBlock(inner string) ([]Segment, bool) {
	if strings.TrimSpace(inner) == "" {
		return nil, false
	}
	var out []Segment
	for _, item := range strings.Split(inner, ",") {
		label := strings.TrimSpace(item)
		seg, ok := parseCitationItem(label)
		if !ok {
			return nil, false
		}
		out = append(out, seg)
	}
	return out, true
}

func parseCitationItem(label string) (Segment, bool) {
	startRaw, endRaw, isRange := strings.Cut(label, "-")
	start, ok := parseTimestamp(strings.TrimSpace(startRaw))
	if !ok {
		return Segment{}, false
	}
	end := -1
	if isRange {
		end, ok = parseTimestamp(strings.TrimSpace(endRaw))
		if !ok {
			return Segment{}, false
		}
	}
	return Segment{Kind: KindCitation, Text: label, Start: start, End: end}, true
}

// parseTimestamp accepts mm:ss and hh:mm:ss. The leading field may be one or
// two digits; every following field must be exactly two digits below 60.
func parseTimestamp(ts string) (int, bool) {
	parts := strings.Split(ts, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}
	lead, ok := parseDigits(parts[0], 1, 2, 99)
	if !ok {
		return 0, false
	}
	total := lead
	for _, p := range parts[1:] {
		n, ok := parseDigits(p, 2, 2, 59)
		if !ok {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

func parseDigits(s string, minLen, maxLen, maxVal int) (int, bool) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > maxVal {
		return 0, false
	}
	return n, true
}

// parseEmphasis splits a plain run on **...** spans. An opener without a
// closer, or an empty span, stays literal.
func parseEmphasis(text string) []Segment {
	var out []Segment
	for len(text) > 0 {
		open := strings.Index(text, "**")
		if open < 0 {
			out = append(out, Segment{Kind: KindPlain, Text: text})
			break
		}
		rest := text[open+2:]
		closeIdx := strings.Index(rest, "**")
		if closeIdx < 0 {
			out = append(out, Segment{Kind: KindPlain, Text: text})
			break
		}
		if closeIdx == 0 {
			// "****" carries no content; emit it literally and move on.
			out = append(out, Segment{Kind: KindPlain, Text: text[:open+4]})
			text = rest[2:]
			continue
		}
		if open > 0 {
			out = append(out, Segment{Kind: KindPlain, Text: text[:open]})
		}
		out = append(out, Segment{Kind: KindEmphasis, Text: rest[:closeIdx]})
		text = rest[closeIdx+2:]
	}
	return out
}
