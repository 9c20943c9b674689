package markup

import (
	"reflect"
	"testing"
)

func plain(s string) Segment    { return Segment{Kind: KindPlain, Text: s} }
func emphasis(s string) Segment { return Segment{Kind: KindEmphasis, Text: s} }
func cite(label string, start, end int) Segment {
	return Segment{Kind: KindCitation, Text: label, Start: start, End: end}
}

func TestRenderCitations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{
			name: "single timestamp and range",
			in:   "See [1:05] and [1:10-1:20] now",
			want: []Segment{
				plain("See "),
				cite("1:05", 65, -1),
				plain(" and "),
				cite("1:10-1:20", 70, 80),
				plain(" now"),
			},
		},
		{
			name: "comma separated list",
			in:   "Covered at [0:12, 2:30-2:45].",
			want: []Segment{
				plain("Covered at "),
				cite("0:12", 12, -1),
				cite("2:30-2:45", 150, 165),
				plain("."),
			},
		},
		{
			name: "hours form",
			in:   "[1:02:03]",
			want: []Segment{cite("1:02:03", 3723, -1)},
		},
		{
			name: "malformed bracket stays literal",
			in:   "unmatched [not-a-time] bracket",
			want: []Segment{plain("unmatched [not-a-time] bracket")},
		},
		{
			name: "unclosed bracket stays literal",
			in:   "dangling [1:05",
			want: []Segment{plain("dangling [1:05")},
		},
		{
			name: "seconds out of range rejected",
			in:   "[1:75]",
			want: []Segment{plain("[1:75]")},
		},
		{
			name: "one bad item poisons the block",
			in:   "[1:05, nope]",
			want: []Segment{plain("[1:05, nope]")},
		},
		{
			name: "empty brackets literal",
			in:   "[] fine",
			want: []Segment{plain("[] fine")},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Render(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Render(%q)\n got %+v\nwant %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderEmphasis(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{
			name: "emphasis span",
			in:   "a **bold** b",
			want: []Segment{plain("a "), emphasis("bold"), plain(" b")},
		},
		{
			name: "multiple spans",
			in:   "**one** and **two**",
			want: []Segment{emphasis("one"), plain(" and "), emphasis("two")},
		},
		{
			name: "unterminated marker literal",
			in:   "a **dangling",
			want: []Segment{plain("a **dangling")},
		},
		{
			name: "emphasis around citation",
			in:   "**key moment** [1:05]",
			want: []Segment{emphasis("key moment"), plain(" "), cite("1:05", 65, -1)},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Render(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Render(%q)\n got %+v\nwant %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSeekSecondsUsesRangeStart(t *testing.T) {
	t.Parallel()
	segs := Render("[10:00-12:30]")
	if len(segs) != 1 || segs[0].Kind != KindCitation {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if got := segs[0].SeekSeconds(); got != 600 {
		t.Fatalf("SeekSeconds() = %d, want 600", got)
	}
}
