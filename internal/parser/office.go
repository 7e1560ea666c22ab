package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf extraction: %w", err)
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf extraction, page %d: %w", i, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return text.String(), nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx extraction: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range strings.Split(content, "</w:p>") {
		if t := strings.TrimSpace(extractTextFromXML(p, "w:t", "")); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}

func parsePPTX(data []byte) (string, error) {
	f, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pptx extraction: %w", err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var text strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		xml, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		if slideText := strings.TrimSpace(extractTextFromXML(string(xml), "a:t", " ")); slideText != "" {
			text.WriteString(slideText)
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

// extractTextFromXML concatenates the character data of every <tag> element,
// separated by sep.
func extractTextFromXML(xmlContent, tag, sep string) string {
	var text strings.Builder
	open := "<" + tag
	closing := "</" + tag + ">"
	for _, part := range strings.Split(xmlContent, open)[1:] {
		// skip longer tag names sharing the prefix, e.g. <w:tab> for <w:t
		if len(part) == 0 || (part[0] != '>' && part[0] != ' ') {
			continue
		}
		start := strings.IndexByte(part, '>')
		end := strings.Index(part, closing)
		if start < 0 || end < start {
			continue
		}
		text.WriteString(html.UnescapeString(part[start+1 : end]))
		text.WriteString(sep)
	}
	return text.String()
}

func parseText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
