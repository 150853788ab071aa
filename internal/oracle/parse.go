package oracle

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractJSON strips markdown code fences around a JSON payload. Models
// frequently wrap structured answers in ```json blocks despite instructions
// not to; the core never sees this, only the adapter does.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}

	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+len("```"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}

	return s
}

// ExtractListItems walks a markdown document and returns the text of its
// list items. Used as a fallback when the model answers a list question in
// prose instead of JSON: the issues/fixes still come back as []string, so
// nothing downstream ever scans raw text.
func ExtractListItems(markdown string) []string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var items []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if _, ok := n.(*ast.ListItem); !ok {
			return ast.WalkContinue, nil
		}
		if item := strings.TrimSpace(nodeText(n, source)); item != "" {
			items = append(items, item)
		}
		return ast.WalkSkipChildren, nil
	})
	return items
}

// nodeText collects the raw text under a node, joining block children with
// single spaces.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		if blk, ok := child.(interface{ Lines() *text.Segments }); ok && blk.Lines().Len() > 0 {
			lines := blk.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			continue
		}
		sb.WriteString(nodeText(child, source))
	}
	return sb.String()
}

// ClampScore forces a score into [0, 1].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
