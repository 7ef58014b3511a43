// Package parser extracts frontmatter and links from Markdown content.
package parser

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/starford/mocsync/internal/models"
)

const (
	fmDelim = "---"
	docExt  = ".md"
)

var (
	wikilinkRe = regexp.MustCompile(`(!?)\[\[([^\[\]]+?)\]\]`)
	mdLinkRe   = regexp.MustCompile(`(!?)\[((?:\\.|[^\[\]\\])*)\]\((<[^>]*>|[^()\s]+)\)`)
	schemeRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)

	labelUnescaper = strings.NewReplacer(`\[`, "[", `\]`, "]")
)

var md = goldmark.New()

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	// FrontmatterEnd is the line index of the closing delimiter, -1 when the
	// document has no front-matter block.
	FrontmatterEnd int
	Links          []models.Link
}

// Parse extracts frontmatter, body and links from raw Markdown bytes.
// Link positions are reported in full-document coordinates.
func Parse(data []byte) (*Result, error) {
	content := string(data)
	lines := strings.Split(content, "\n")

	fmEnd := frontmatterEnd(lines)
	var fm map[string]interface{}
	bodyLine := 0
	if fmEnd >= 0 {
		block := strings.Join(lines[1:fmEnd], "\n")
		if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
			// Invalid YAML: keep the block boundaries, drop the values.
			fm = nil
		}
		bodyLine = fmEnd + 1
	}

	bodyOffset := 0
	for i := 0; i < bodyLine && i < len(lines); i++ {
		bodyOffset += len(lines[i]) + 1
	}
	if bodyOffset > len(content) {
		bodyOffset = len(content)
	}
	body := content[bodyOffset:]

	excluded := codeRanges([]byte(body), bodyOffset)
	links := extractLinks(lines, bodyLine, bodyOffset, excluded)

	return &Result{
		Frontmatter:    fm,
		Body:           body,
		FrontmatterEnd: fmEnd,
		Links:          links,
	}, nil
}

// frontmatterEnd returns the index of the line closing a leading front-matter
// block, or -1.
func frontmatterEnd(lines []string) int {
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r ") != fmDelim {
		return -1
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r ") == fmDelim {
			return i
		}
	}
	return -1
}

type byteRange struct{ start, stop int }

// codeRanges returns the absolute byte ranges covered by code blocks and code
// spans; links inside them are literal text.
func codeRanges(body []byte, offset int) []byteRange {
	var out []byteRange
	doc := md.Parser().Parse(text.NewReader(body))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				out = append(out, byteRange{offset + seg.Start, offset + seg.Stop})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					out = append(out, byteRange{offset + t.Segment.Start, offset + t.Segment.Stop})
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

// HeadingLines returns the indices of the lines holding second-level ATX
// headings in the body that starts at line bodyLine. Lines inside code blocks
// and setext underlines never count.
func HeadingLines(lines []string, bodyLine int) []int {
	if bodyLine < 0 || bodyLine >= len(lines) {
		return nil
	}
	body := strings.Join(lines[bodyLine:], "\n")
	var out []int
	doc := md.Parser().Parse(text.NewReader([]byte(body)))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Level == 2 && h.Lines().Len() > 0 {
			ln := bodyLine + strings.Count(body[:h.Lines().At(0).Start], "\n")
			if strings.HasPrefix(lines[ln], "## ") {
				out = append(out, ln)
			}
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

func inRanges(pos int, ranges []byteRange) bool {
	for _, r := range ranges {
		if pos >= r.start && pos < r.stop {
			return true
		}
	}
	return false
}

// extractLinks collects wikilinks and inline markdown links from the body
// lines, in document order.
func extractLinks(lines []string, bodyLine, bodyOffset int, excluded []byteRange) []models.Link {
	var out []models.Link
	lineStart := bodyOffset
	for i := bodyLine; i < len(lines); i++ {
		line := lines[i]
		var wikiSpans [][]int

		for _, m := range wikilinkRe.FindAllStringSubmatchIndex(line, -1) {
			wikiSpans = append(wikiSpans, m[:2])
			if m[3] > m[2] || inRanges(lineStart+m[0], excluded) {
				continue // embed or code
			}
			if l, ok := wikiLink(line[m[0]:m[1]], line[m[4]:m[5]]); ok {
				l.Line, l.Col = i, m[0]
				out = append(out, l)
			}
		}

		for _, m := range mdLinkRe.FindAllStringSubmatchIndex(line, -1) {
			if m[3] > m[2] || overlaps(m[0], m[1], wikiSpans) || inRanges(lineStart+m[0], excluded) {
				continue
			}
			if l, ok := markdownLink(line[m[0]:m[1]], line[m[4]:m[5]], line[m[6]:m[7]]); ok {
				l.Line, l.Col = i, m[0]
				out = append(out, l)
			}
		}
		lineStart += len(line) + 1
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Line != out[b].Line {
			return out[a].Line < out[b].Line
		}
		return out[a].Col < out[b].Col
	})
	return out
}

func overlaps(start, stop int, spans [][]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < stop {
			return true
		}
	}
	return false
}

// wikiLink handles [[Target#heading|Alias]].
func wikiLink(original, inner string) (models.Link, bool) {
	target, alias, _ := strings.Cut(inner, "|")
	if i := strings.Index(target, "#"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return models.Link{}, false
	}
	display := strings.TrimSpace(alias)
	if display == "" {
		display = target
	}
	return models.Link{
		Original: original,
		Target:   NormalizeTarget(target),
		Display:  display,
		Kind:     models.LinkWiki,
	}, true
}

// markdownLink handles [text](dest), ignoring external URLs.
func markdownLink(original, label, dest string) (models.Link, bool) {
	dest = strings.TrimSuffix(strings.TrimPrefix(dest, "<"), ">")
	if schemeRe.MatchString(dest) {
		return models.Link{}, false
	}
	if i := strings.Index(dest, "#"); i >= 0 {
		dest = dest[:i]
	}
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return models.Link{}, false
	}
	return models.Link{
		Original: original,
		Target:   NormalizeTarget(dest),
		Display:  labelUnescaper.Replace(label),
		Kind:     models.LinkMarkdown,
	}, true
}

// NormalizeTarget percent-decodes a link destination and appends the
// document extension when it has none.
func NormalizeTarget(dest string) string {
	if dec, err := url.PathUnescape(dest); err == nil {
		dest = dec
	}
	if path.Ext(dest) == "" {
		dest += docExt
	}
	return dest
}

// IsTruthy reports whether a front-matter value enables a flag.
func IsTruthy(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		return s != "" && s != "false" && s != "0" && s != "no"
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	return false
}

// HasFlag reports whether the front-matter key is present and truthy.
func (r *Result) HasFlag(key string) bool {
	if r == nil || r.Frontmatter == nil {
		return false
	}
	return IsTruthy(r.Frontmatter[key])
}

// SetFlag returns data with front-matter key set to true, adding a
// front-matter block when the document has none.
func SetFlag(data []byte, key string) []byte {
	content := string(data)
	lines := strings.Split(content, "\n")
	end := frontmatterEnd(lines)
	flag := fmt.Sprintf("%s: true", key)
	if end < 0 {
		return []byte(fmDelim + "\n" + flag + "\n" + fmDelim + "\n" + content)
	}
	for i := 1; i < end; i++ {
		if strings.HasPrefix(lines[i], key+":") {
			lines[i] = flag
			return []byte(strings.Join(lines, "\n"))
		}
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:end]...)
	out = append(out, flag)
	out = append(out, lines[end:]...)
	return []byte(strings.Join(out, "\n"))
}
