package ingest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractText pulls plain text out of an uploaded document. The format is
// decided by mime type first, file extension second; anything else is
// treated as plain text if it decodes as UTF-8.
func ExtractText(name, mimeType string, data []byte) (string, error) {
	switch {
	case mimeType == "application/pdf" || hasExt(name, ".pdf"):
		return extractPDF(data)
	case mimeType == "text/markdown" || hasExt(name, ".md") || hasExt(name, ".markdown"):
		return extractMarkdown(data)
	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("unsupported binary format: %s", name)
		}
		return string(data), nil
	}
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	content, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// extractMarkdown walks the parsed AST and keeps only text content, so
// formatting syntax never pollutes the chunks.
func extractMarkdown(data []byte) (string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(data))
	var sb strings.Builder
	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, isBlock := node.(*ast.Paragraph); isBlock {
				sb.WriteString("\n\n")
			} else if _, isHeading := node.(*ast.Heading); isHeading {
				sb.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch typed := node.(type) {
		case *ast.Text:
			sb.Write(typed.Segment.Value(data))
			if typed.SoftLineBreak() || typed.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.CodeBlock:
			writeLines(&sb, typed.Lines(), data)
		case *ast.FencedCodeBlock:
			writeLines(&sb, typed.Lines(), data)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

func writeLines(sb *strings.Builder, lines *text.Segments, source []byte) {
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		sb.Write(segment.Value(source))
	}
	sb.WriteString("\n\n")
}
