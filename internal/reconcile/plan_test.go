package reconcile

import (
	"errors"
	"testing"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/parser"
)

func planFor(t *testing.T, content string, in Input) Output {
	t.Helper()
	res, err := parser.Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	in.Content = content
	in.FrontmatterEnd = res.FrontmatterEnd
	in.Links = res.Links
	out, err := Plan(in)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return out
}

func TestPlan(t *testing.T) {
	cases := []struct {
		name    string
		content string
		in      Input
		want    string
	}{
		{
			name:    "adds missing items under first heading",
			content: "---\nMOC-plugin: true\n---\n# Projects\n## Items\n- [ ] [Alpha](Alpha/Alpha.md)\n",
			in:      Input{HubFolder: "Projects", Items: []string{"Alpha", "Beta"}},
			want:    "---\nMOC-plugin: true\n---\n# Projects\n## Items\n- [ ] [Beta](Beta/Beta.md)\n- [ ] [Alpha](Alpha/Alpha.md)\n",
		},
		{
			name:    "removes stale checklist lines and unlinks inline references",
			content: "## Items\n- [ ] [Gone](Gone/Gone.md)\n- [x] [[Old]]\nSee [Gone](Gone/Gone.md) here.\n",
			in:      Input{HubFolder: "Projects"},
			want:    "## Items\nSee Gone here.\n",
		},
		{
			name:    "normalizes bare and vault-absolute links",
			content: "## Items\n- [ ] [[Alpha]]\n- [ ] [a](Projects/Alpha%20B/Alpha%20B.md)\n",
			in:      Input{HubFolder: "Projects", Items: []string{"Alpha", "Alpha B"}},
			want:    "## Items\n- [ ] [Alpha](Alpha/Alpha.md)\n- [ ] [Alpha B](Alpha%20B/Alpha%20B.md)\n",
		},
		{
			name:    "drops duplicate links to the same item",
			content: "## Items\n- [ ] [Alpha](Alpha/Alpha.md)\n- [ ] [[Alpha/Alpha]]\n",
			in:      Input{HubFolder: "Projects", Items: []string{"Alpha"}},
			want:    "## Items\n- [ ] [Alpha](Alpha/Alpha.md)\n",
		},
		{
			name:    "rewrites links of renamed items",
			content: "## Items\n- [x] [Old](Old/Old.md)\n",
			in:      Input{HubFolder: "Projects", Items: []string{"New"}, Renamed: map[string]string{"Old": "New"}},
			want:    "## Items\n- [x] [New](New/New.md)\n",
		},
		{
			name:    "leaves unrelated links alone",
			content: "## Items\n- [[Elsewhere]]\n- [ref](../Other/Other.md)\n- [pic](attachments/p.png)\n- [site](https://example.com)\n",
			in: Input{HubFolder: "Projects", Exists: func(target string) bool {
				return target == "Elsewhere.md"
			}},
			want: "## Items\n- [[Elsewhere]]\n- [ref](../Other/Other.md)\n- [pic](attachments/p.png)\n- [site](https://example.com)\n",
		},
		{
			name:    "ignores links in code",
			content: "## Items\n```\n- [ ] [Gone](Gone/Gone.md)\n```\n",
			in:      Input{HubFolder: "Projects"},
			want:    "## Items\n```\n- [ ] [Gone](Gone/Gone.md)\n```\n",
		},
		{
			name:    "adds heading after front matter",
			content: "---\nMOC-plugin: true\n---\nbody\n",
			in:      Input{HubFolder: "Projects", Items: []string{"A"}},
			want:    "---\nMOC-plugin: true\n---\n## New items\n- [ ] [A](A/A.md)\nbody\n",
		},
		{
			name:    "adds heading at top without front matter",
			content: "body\n",
			in:      Input{HubFolder: "Projects", Items: []string{"A"}, Heading: "Index"},
			want:    "## Index\n- [ ] [A](A/A.md)\nbody\n",
		},
		{
			name:    "escapes destinations",
			content: "",
			in:      Input{HubFolder: "Projects", Items: []string{"Plan (v2)"}},
			want:    "## New items\n- [ ] [Plan (v2)](Plan%20%28v2%29/Plan%20%28v2%29.md)\n",
		},
		{
			name:    "escapes brackets in item names",
			content: "## Items\n",
			in:      Input{HubFolder: "Projects", Items: []string{"Draft [v2]"}},
			want:    "## Items\n- [ ] [Draft \\[v2\\]](Draft%20%5Bv2%5D/Draft%20%5Bv2%5D.md)\n",
		},
		{
			name:    "unlinks stale bracketed item with plain text",
			content: "## Items\nSee [Draft \\[v2\\]](Draft%20%5Bv2%5D/Draft%20%5Bv2%5D.md).\n",
			in:      Input{HubFolder: "Projects"},
			want:    "## Items\nSee Draft [v2].\n",
		},
		{
			name:    "heading inside code fence is not an insertion point",
			content: "---\nMOC-plugin: true\n---\n```\n## not a heading\n```\n",
			in:      Input{HubFolder: "Projects", Items: []string{"Alpha"}},
			want:    "---\nMOC-plugin: true\n---\n## New items\n- [ ] [Alpha](Alpha/Alpha.md)\n```\n## not a heading\n```\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := planFor(t, tc.content, tc.in)
			if out.Content != tc.want {
				t.Fatalf("content =\n%q\nwant\n%q", out.Content, tc.want)
			}
			if out.Changed != (tc.want != tc.content) {
				t.Errorf("changed = %v", out.Changed)
			}
			again := planFor(t, out.Content, tc.in)
			if again.Changed {
				t.Errorf("second pass changed content to %q", again.Content)
			}
		})
	}
}

func TestPlan_EveryItemLinkedOnce(t *testing.T) {
	content := "## Items\n- [ ] [[B]]\n- [ ] [B](B/B.md)\nnote [[C]]\n"
	out := planFor(t, content, Input{HubFolder: "H", Items: []string{"A", "B", "C"}})
	res, _ := parser.Parse([]byte(out.Content))
	seen := map[string]int{}
	for _, l := range res.Links {
		form, name := classify(l.Target, "H")
		if form != formRelative {
			t.Errorf("link %q not canonical", l.Original)
		}
		seen[name]++
	}
	for _, it := range []string{"A", "B", "C"} {
		if seen[it] != 1 {
			t.Errorf("item %s linked %d times in %q", it, seen[it], out.Content)
		}
	}
}

func TestPlan_StalePositions(t *testing.T) {
	_, err := Plan(Input{
		Content: "## Items\n- [[A]]\n",
		Links:   []models.Link{{Original: "[[A]]", Target: "A.md", Line: 1, Col: 4}},
	})
	if !errors.Is(err, apperr.ErrStale) {
		t.Errorf("err = %v, want ErrStale", err)
	}
}

func TestInsertionPoint(t *testing.T) {
	cases := []struct {
		name        string
		lines       []string
		fmEnd       int
		wantAt      int
		wantHeading bool
	}{
		{"heading", []string{"# T", "## Items", "x"}, -1, 2, false},
		{"heading in front matter ignored", []string{"---", "## a: b", "---", "text"}, 2, 3, true},
		{"front matter only", []string{"---", "k: v", "---"}, 2, 3, true},
		{"empty", []string{""}, -1, 0, true},
		{"heading in fence ignored", []string{"```", "## x", "```", "## Items"}, -1, 4, false},
		{"setext heading ignored", []string{"Title", "---", "text"}, -1, 0, true},
	}
	for _, tc := range cases {
		at, heading := InsertionPoint(tc.lines, tc.fmEnd)
		if at != tc.wantAt || heading != tc.wantHeading {
			t.Errorf("%s: InsertionPoint = %d,%v want %d,%v", tc.name, at, heading, tc.wantAt, tc.wantHeading)
		}
	}
}
