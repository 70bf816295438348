// Package markdown splits markdown uploads into header-delimited sections.
// Sections carry their header hierarchy so retrieved passages keep context,
// and feed the same chunking path as extracted PDF pages.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is a contiguous region of a markdown document under one header.
type Section struct {
	Index      int    // Position in document (0, 1, 2...)
	HeaderPath string // Hierarchy: "# Doc Title > ## Section Name"
	Text       string // Section content with the header path prepended
}

// Splitter cuts markdown documents at H1/H2 boundaries.
type Splitter struct {
	parser goldmark.Markdown
}

// NewSplitter creates a Splitter backed by a goldmark parser.
func NewSplitter() *Splitter {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Splitter{parser: md}
}

// Split returns the document's sections in source order. A document
// without headers comes back as a single section with an empty path.
func (s *Splitter) Split(source []byte) ([]Section, error) {
	reader := text.NewReader(source)
	doc := s.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2), // Split at H1 and H2 only
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	if len(tree.Items) == 0 {
		body := strings.TrimSpace(string(source))
		if body == "" {
			return nil, nil
		}
		return []Section{{Index: 0, Text: body}}, nil
	}

	var sections []Section
	s.collect(doc, source, tree.Items, nil, &sections)
	return sections, nil
}

// collect walks TOC items recursively, emitting one section per header.
func (s *Splitter) collect(doc ast.Node, source []byte, items toc.Items, ancestors []string, out *[]Section) {
	for i, item := range items {
		path := append(ancestors, string(item.Title))
		headerPath := formatHeaderPath(path)

		headerNode := findHeaderByID(doc, string(item.ID))
		if headerNode == nil {
			continue
		}

		startLine := headerNode.Lines().At(0)
		var endLine text.Segment
		if i+1 < len(items) {
			if next := findHeaderByID(doc, string(items[i+1].ID)); next != nil {
				endLine = next.Lines().At(0)
			}
		} else {
			endLine = nextBoundary(doc, headerNode, headerNode.(*ast.Heading).Level)
		}

		body := sliceContent(source, startLine, endLine)
		*out = append(*out, Section{
			Index:      len(*out),
			HeaderPath: headerPath,
			Text:       fmt.Sprintf("%s\n\n%s", headerPath, body),
		})

		if len(item.Items) > 0 {
			s.collect(doc, source, item.Items, path, out)
		}
	}
}

// formatHeaderPath renders a hierarchy like "# Install > ## Prerequisites".
func formatHeaderPath(path []string) string {
	if len(path) == 0 {
		return ""
	}
	var parts []string
	for i, segment := range path {
		prefix := strings.Repeat("#", i+1)
		parts = append(parts, fmt.Sprintf("%s %s", prefix, segment))
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			headingID, ok := heading.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// nextBoundary finds the next heading at the same or higher level after current.
func nextBoundary(root ast.Node, current ast.Node, currentLevel int) text.Segment {
	var next ast.Node
	passedCurrent := false

	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if !passedCurrent {
			if n == current {
				passedCurrent = true
			}
			return ast.WalkContinue, nil
		}
		if n.(*ast.Heading).Level <= currentLevel {
			next = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if next != nil {
		return next.Lines().At(0)
	}
	// No later boundary; caller extracts to EOF.
	return text.Segment{}
}

// sliceContent extracts the text between two line segments.
func sliceContent(source []byte, start, end text.Segment) string {
	var buf bytes.Buffer
	if end.Start == 0 && end.Stop == 0 {
		buf.Write(source[start.Start:])
	} else {
		buf.Write(source[start.Start:end.Start])
	}
	return strings.TrimSpace(buf.String())
}
