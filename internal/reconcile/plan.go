// Package reconcile keeps the link list embedded in a hub document in step
// with the hub's item folders.
package reconcile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/parser"
)

const docExt = ".md"

// DefaultHeading titles the section created for new item links when the hub
// has no second-level heading.
const DefaultHeading = "New items"

var (
	checklistRe  = regexp.MustCompile(`^\s*[-*+] \[[ xX]\] `)
	destEscaper  = strings.NewReplacer("%", "%25", " ", "%20", "(", "%28", ")", "%29", "#", "%23", "[", "%5B", "]", "%5D")
	labelEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)
)

// Input is everything a reconciliation plan depends on.
type Input struct {
	Content        string
	FrontmatterEnd int
	Links          []models.Link
	HubFolder      string
	// Items are the hub's item names in listing order.
	Items []string
	// Renamed maps old item names to their new names.
	Renamed map[string]string
	// Exists reports whether a vault document matches a link target that is
	// not an item. Nil treats every such target as missing.
	Exists  func(target string) bool
	Heading string
}

// Output is the reconciled document and what changed.
type Output struct {
	Content    string
	Changed    bool
	Added      []string
	Removed    []string
	Normalized []string
	Renamed    []string
	Unlinked   []string
}

type editKind int

const (
	editRewrite editKind = iota
	editStrip
)

type edit struct {
	link models.Link
	kind editKind
	repl string
}

// CanonicalLink returns the markdown link a hub uses for item.
func CanonicalLink(item string) string {
	dest := destEscaper.Replace(item)
	return fmt.Sprintf("[%s](%s/%s%s)", labelEscaper.Replace(item), dest, dest, docExt)
}

// NewItemLine returns the checklist line appended for an unindexed item.
func NewItemLine(item string) string {
	return "- [ ] " + CanonicalLink(item)
}

// Plan computes the reconciled hub content. It fails with apperr.ErrStale when
// a link's recorded position does not match Content.
func Plan(in Input) (Output, error) {
	lines := strings.Split(in.Content, "\n")
	items := make(map[string]bool, len(in.Items))
	for _, it := range in.Items {
		items[it] = true
	}
	heading := in.Heading
	if heading == "" {
		heading = DefaultHeading
	}

	var out Output
	indexed := make(map[string]bool, len(in.Items))
	byLine := make(map[int][]edit)

	for _, l := range in.Links {
		if l.Line < 0 || l.Line >= len(lines) || l.Col < 0 ||
			l.Col+len(l.Original) > len(lines[l.Line]) ||
			lines[l.Line][l.Col:l.Col+len(l.Original)] != l.Original {
			return Output{}, fmt.Errorf("reconcile: link %q at %d:%d: %w", l.Original, l.Line, l.Col, apperr.ErrStale)
		}

		form, name := classify(l.Target, in.HubFolder)
		if form == formUnrelated {
			continue
		}
		target := name
		if !items[name] {
			if renamed, ok := in.Renamed[name]; ok && items[renamed] {
				target = renamed
			}
		}

		switch {
		case items[target] && !indexed[target]:
			indexed[target] = true
			switch {
			case target != name:
				byLine[l.Line] = append(byLine[l.Line], edit{link: l, kind: editRewrite, repl: CanonicalLink(target)})
				out.Renamed = append(out.Renamed, name+" -> "+target)
			case form != formRelative:
				byLine[l.Line] = append(byLine[l.Line], edit{link: l, kind: editRewrite, repl: CanonicalLink(target)})
				out.Normalized = append(out.Normalized, target)
			}
		case items[target]:
			// Second link to an indexed item.
			byLine[l.Line] = append(byLine[l.Line], edit{link: l, kind: editStrip})
			out.Removed = append(out.Removed, target)
		case in.Exists != nil && in.Exists(l.Target):
			// Points at some other document in the vault.
			continue
		default:
			byLine[l.Line] = append(byLine[l.Line], edit{link: l, kind: editStrip})
			out.Removed = append(out.Removed, name)
		}
	}

	drop := make(map[int]bool)
	for ln, edits := range byLine {
		line := lines[ln]
		// Right to left so earlier columns stay valid.
		for i := len(edits) - 1; i >= 0; i-- {
			e := edits[i]
			start, end := e.link.Col, e.link.Col+len(e.link.Original)
			switch e.kind {
			case editRewrite:
				line = line[:start] + e.repl + line[end:]
			case editStrip:
				if isChecklistOnly(line, e.link.Original) {
					drop[ln] = true
					continue
				}
				line = line[:start] + e.link.Display + line[end:]
				out.Unlinked = append(out.Unlinked, e.link.Original)
			}
		}
		lines[ln] = line
	}

	kept := lines[:0:0]
	fmEnd := in.FrontmatterEnd
	for i, line := range lines {
		if drop[i] {
			continue
		}
		kept = append(kept, line)
	}

	var additions []string
	for _, it := range in.Items {
		if !indexed[it] {
			additions = append(additions, NewItemLine(it))
			out.Added = append(out.Added, it)
		}
	}
	if len(additions) > 0 {
		at, needHeading := InsertionPoint(kept, fmEnd)
		block := additions
		if needHeading {
			block = append([]string{"## " + heading}, additions...)
		}
		merged := make([]string, 0, len(kept)+len(block))
		merged = append(merged, kept[:at]...)
		merged = append(merged, block...)
		merged = append(merged, kept[at:]...)
		kept = merged
	}

	out.Content = strings.Join(kept, "\n")
	out.Changed = out.Content != in.Content
	return out, nil
}

// InsertionPoint returns the line index new item links go before. It is the
// line after the first second-level heading below the front matter; without
// one, the line after the front matter (or the top of the document) and a
// heading must be added. Heading-like lines inside code blocks are ignored.
func InsertionPoint(lines []string, frontmatterEnd int) (int, bool) {
	if headings := parser.HeadingLines(lines, frontmatterEnd+1); len(headings) > 0 {
		return headings[0] + 1, false
	}
	if frontmatterEnd >= 0 && frontmatterEnd < len(lines) {
		return frontmatterEnd + 1, true
	}
	return 0, true
}

func isChecklistOnly(line, original string) bool {
	loc := checklistRe.FindStringIndex(line)
	if loc == nil {
		return false
	}
	return strings.TrimRight(line[loc[1]:], " \t\r") == original
}

type linkForm int

const (
	formUnrelated linkForm = iota
	formRelative           // item/item.md
	formBare               // item.md
	formAbsolute           // <hubFolder>/item/item.md
)

// classify decides whether a normalized link target is shaped like an item
// link of the hub, and names the item it refers to.
func classify(target, hubFolder string) (linkForm, string) {
	if !strings.HasSuffix(target, docExt) || strings.HasPrefix(target, "../") || strings.HasPrefix(target, "./") {
		return formUnrelated, ""
	}
	if hubFolder != "" && strings.HasPrefix(target, hubFolder+"/") {
		if name, ok := pairName(strings.TrimPrefix(target, hubFolder+"/")); ok {
			return formAbsolute, name
		}
	}
	if name, ok := pairName(target); ok {
		return formRelative, name
	}
	if !strings.Contains(target, "/") {
		return formBare, strings.TrimSuffix(target, docExt)
	}
	return formUnrelated, ""
}

// pairName matches "X/X.md" and returns X.
func pairName(rel string) (string, bool) {
	dir, file, ok := strings.Cut(rel, "/")
	if !ok || strings.Contains(file, "/") || dir == "" {
		return "", false
	}
	if strings.TrimSuffix(file, docExt) != dir {
		return "", false
	}
	return dir, true
}
