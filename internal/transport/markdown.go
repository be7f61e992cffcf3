package transport

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownParser is shared across calls; the goldmark Parser holds no
// per-document state, per the package's own documented contract.
var markdownParser = goldmark.New().Parser()

// renderPlainText walks input's markdown AST and strips formatting markup
// down to the plain text a non-rendering terminal can display, grounded on
// the ticketui markdown renderer's ast.Walk dispatch style, stripped of the
// lipgloss/chroma styling that Discord's own client already applies when
// the same *bold*/`code`-marked text is posted there directly.
func renderPlainText(input string) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	doc := markdownParser.Parse(text.NewReader(source))

	r := &plainRenderer{source: source}
	ast.Walk(doc, r.walk)
	return strings.TrimRight(r.out.String(), "\n")
}

type plainRenderer struct {
	source []byte
	out    strings.Builder
}

func (r *plainRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock:
		if !entering {
			r.out.WriteString("\n\n")
		}
	case ast.KindListItem:
		if entering {
			r.out.WriteString("- ")
		}
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				r.out.Write(seg.Value(r.source))
			}
			r.out.WriteString("\n")
			return ast.WalkSkipChildren, nil
		}
	case ast.KindCodeSpan:
		if entering {
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					r.out.Write(t.Segment.Value(r.source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			r.out.Write(t.Segment.Value(r.source))
			if t.SoftLineBreak() {
				r.out.WriteString(" ")
			}
			if t.HardLineBreak() {
				r.out.WriteString("\n")
			}
		}
	case ast.KindAutoLink:
		if entering {
			al := n.(*ast.AutoLink)
			r.out.Write(al.URL(r.source))
		}
	}
	return ast.WalkContinue, nil
}
