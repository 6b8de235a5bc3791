package app

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// chunkPayload is one extracted chunk before embedding.
type chunkPayload struct {
	Content  string
	Metadata map[string]string
}

// parser extracts text from uploaded documents and splits it into
// overlapping rune windows.
type parser struct {
	chunkSize    int
	chunkOverlap int
}

func newParser(chunkSize, chunkOverlap int) *parser {
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 6
	}
	return &parser{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// parseAndChunk dispatches on the original file name's extension; path is
// the local copy of the downloaded object.
func (p *parser) parseAndChunk(fileName, path string) ([]chunkPayload, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return p.parsePDF(path)
	case ".epub":
		return p.parseEPUB(path)
	default:
		return p.parseText(path)
	}
}

func (p *parser) parsePDF(path string) ([]chunkPayload, error) {
	// pdftotext handles complex layouts and CJK text better than the Go
	// library, so prefer it when installed.
	chunks, err := p.parsePDFWithPdftotext(path)
	if err == nil && len(chunks) > 0 {
		return chunks, nil
	}
	return p.parsePDFWithGoLib(path)
}

func (p *parser) parsePDFWithPdftotext(path string) ([]chunkPayload, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not found: %w", err)
	}
	output, err := exec.Command("pdftotext", "-layout", "-enc", "UTF-8", path, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	text := normalizeText(string(output))
	if text == "" {
		return nil, fmt.Errorf("no text extracted from PDF")
	}
	var chunks []chunkPayload
	for idx, part := range chunkText(text, p.chunkSize, p.chunkOverlap) {
		chunks = append(chunks, chunkPayload{
			Content:  part,
			Metadata: map[string]string{"chunk": strconv.Itoa(idx)},
		})
	}
	return chunks, nil
}

func (p *parser) parsePDFWithGoLib(path string) ([]chunkPayload, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	var chunks []chunkPayload
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing the document.
			continue
		}
		for idx, part := range chunkText(normalizeText(text), p.chunkSize, p.chunkOverlap) {
			chunks = append(chunks, chunkPayload{
				Content: part,
				Metadata: map[string]string{
					"page":  strconv.Itoa(i),
					"chunk": strconv.Itoa(idx),
				},
			})
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text extracted from PDF")
	}
	return chunks, nil
}

func (p *parser) parseEPUB(path string) ([]chunkPayload, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer reader.Close()
	var chunks []chunkPayload
	for _, file := range reader.File {
		name := strings.ToLower(file.Name)
		if !strings.HasSuffix(name, ".xhtml") && !strings.HasSuffix(name, ".html") && !strings.HasSuffix(name, ".htm") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("read epub file: %w", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read epub content: %w", err)
		}
		doc, err := html.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse epub html: %w", err)
		}
		text := normalizeText(extractText(doc))
		section := filepath.Base(file.Name)
		for idx, part := range chunkText(text, p.chunkSize, p.chunkOverlap) {
			chunks = append(chunks, chunkPayload{
				Content: part,
				Metadata: map[string]string{
					"section": section,
					"chunk":   strconv.Itoa(idx),
				},
			})
		}
	}
	return chunks, nil
}

func (p *parser) parseText(path string) ([]chunkPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	parts := chunkText(normalizeText(string(data)), p.chunkSize, p.chunkOverlap)
	chunks := make([]chunkPayload, 0, len(parts))
	for idx, part := range parts {
		chunks = append(chunks, chunkPayload{
			Content:  part,
			Metadata: map[string]string{"chunk": strconv.Itoa(idx)},
		})
	}
	return chunks, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// chunkText splits text into rune windows of the given size with overlap.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			chunks = append(chunks, part)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// extractText flattens an HTML document to text, skipping script and style.
func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString(" ")
		}
	}
	walk(n)
	return buf.String()
}
