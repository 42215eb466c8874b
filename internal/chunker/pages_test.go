package chunker

import "testing"

const testLayout = `{
  "pdf_info": [
    {"page_idx": 0, "para_blocks": [
      {"type": "title", "lines": [{"spans": [{"content": "Cover"}]}]},
      {"type": "text", "lines": [
        {"spans": [{"content": "Principles of delivery"}, {"content": "  "}]},
        {"spans": [{"content": "value first"}]}
      ]}
    ]},
    {"page_idx": 10, "para_blocks": [
      {"type": "text", "lines": [{"spans": [{"content": "Risk Management process"}]}]}
    ]},
    {"para_blocks": [{"type": "text", "lines": [{"spans": [{"content": "orphan"}]}]}]}
  ]
}`

func Test_ParseLayout(t *testing.T) {
	t.Parallel()
	idx, err := ParseLayout([]byte(testLayout))
	if err != nil {
		t.Fatalf("ParseLayout: %v", err)
	}
	pages := idx.Pages()
	if len(pages) != 2 || pages[0] != 1 || pages[1] != 11 {
		t.Fatalf("pages = %v, want [1 11]", pages)
	}
	if got := idx[1]; len(got) != 2 || got[0] != "Principles of delivery" || got[1] != "value first" {
		t.Errorf("page 1 spans = %q", got)
	}
	if got := idx[11]; len(got) != 1 || got[0] != "Risk Management process" {
		t.Errorf("page 11 spans = %q", got)
	}
}

func Test_ParseLayout_Invalid(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"not json", `{"pages": []}`} {
		if _, err := ParseLayout([]byte(in)); err == nil {
			t.Errorf("ParseLayout(%q): want error", in)
		}
	}
}

func Test_PageIndex_Assign(t *testing.T) {
	t.Parallel()
	idx := PageIndex{
		3: {"alpha beta"},
		2: {"alpha beta"},
		5: {"gamma delta epsilon"},
	}
	cases := []struct {
		name string
		text string
		want int
	}{
		{"tie keeps lowest page", "alpha beta", 2},
		{"most overlap wins", "gamma delta alpha", 5},
		{"no overlap", "zzz yyy", 0},
		{"empty text", "   ", 0},
		{"only leading tokens count", "x1 x2 x3 x4 x5 x6 x7 x8 x9 x10 gamma delta", 0},
	}
	for _, tc := range cases {
		if got := idx.Assign(tc.text); got != tc.want {
			t.Errorf("%s: Assign(%q) = %d, want %d", tc.name, tc.text, got, tc.want)
		}
	}

	var empty PageIndex
	if got := empty.Assign("alpha"); got != 0 {
		t.Errorf("nil index Assign = %d, want 0", got)
	}
}
