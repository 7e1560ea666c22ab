// Package parser turns uploaded bytes into text and, for spreadsheet-like formats, a
// table. Nothing in here keeps state between calls.
package parser

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

var ErrUnsupportedType = errors.New("unsupported file format")

// Extractor dispatches on the declared file type.
type Extractor struct {
	client      *http.Client
	crawlLinks  bool
	maxLinks    int
	readability bool
}

type Option func(*Extractor)

// WithCrawlLinks makes Extract fetch the pages linked from the extracted text and
// append their content.
func WithCrawlLinks(crawl bool) Option {
	return func(e *Extractor) { e.crawlLinks = crawl }
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		if c != nil {
			e.client = c
		}
	}
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		client:   &http.Client{Timeout: 5 * time.Second},
		maxLinks: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TypeOf returns the declared type of a file: its lower-cased extension, or the
// extension registered for contentType when the name has none.
func TypeOf(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "text/plain":
		return ".txt"
	case "text/html":
		return ".html"
	case "text/csv":
		return ".csv"
	case "application/json":
		return ".json"
	case "application/pdf":
		return ".pdf"
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// Extract never panics and never returns an error: failures come back with OK unset
// and a Reason.
func (e *Extractor) Extract(ctx context.Context, data []byte, declaredType string) (res models.Extraction) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("type", declaredType).Msg("extractor panicked")
			res = failed(fmt.Errorf("extraction panicked: %v", r))
		}
	}()

	text, table, err := e.parse(declaredType, data)
	if err != nil {
		return failed(err)
	}
	if strings.TrimSpace(text) == "" {
		return failed(fmt.Errorf("no text found in %s file", strings.TrimPrefix(declaredType, ".")))
	}
	if e.crawlLinks {
		text = e.appendLinkedContent(ctx, text)
	}
	return models.Extraction{Text: text, Table: table, OK: true}
}

func (e *Extractor) parse(declaredType string, data []byte) (string, *models.Table, error) {
	switch strings.ToLower(declaredType) {
	case ".pdf":
		text, err := parsePDF(data)
		return text, nil, err
	case ".docx":
		text, err := parseDOCX(data)
		return text, nil, err
	case ".pptx":
		text, err := parsePPTX(data)
		return text, nil, err
	case ".xlsx":
		return parseXLSX(data)
	case ".csv":
		return parseCSV(data)
	case ".json":
		return parseJSON(data)
	case ".md", ".markdown":
		text, err := parseMarkdown(data)
		return text, nil, err
	case ".html", ".htm":
		text, err := e.parseHTML(data)
		return text, nil, err
	case ".png", ".jpg", ".jpeg":
		text, err := parseImage(data, declaredType)
		return text, nil, err
	case ".txt":
		return parseText(data), nil, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedType, declaredType)
	}
}

func failed(err error) models.Extraction {
	return models.Extraction{OK: false, Reason: err.Error()}
}
