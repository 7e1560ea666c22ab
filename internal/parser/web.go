package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"code.sajari.com/docconv"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"document-qa/internal/models"
)

const maxFetchBytes = 10 << 20

var hyperlinkRe = regexp.MustCompile(models.HyperlinkRegex)

func (e *Extractor) parseHTML(data []byte) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), "text/html", e.readability)
	if err != nil {
		return "", fmt.Errorf("html extraction: %w", err)
	}
	return res.Body, nil
}

// parseImage needs docconv built with the ocr tag; otherwise every image fails.
func parseImage(data []byte, declaredType string) (string, error) {
	mimeType := "image/png"
	if declaredType == ".jpg" || declaredType == ".jpeg" {
		mimeType = "image/jpeg"
	}
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return res.Body, nil
}

// parseMarkdown keeps the text content of a markdown document, one block per line.
func parseMarkdown(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("markdown extraction: %w", err)
	}
	return b.String(), nil
}

// FetchURL downloads a web page and extracts it like an uploaded file.
func (e *Extractor) FetchURL(ctx context.Context, rawURL string) models.Extraction {
	body, contentType, err := e.fetch(ctx, rawURL)
	if err != nil {
		return failed(err)
	}
	declared := TypeOf("", contentType)
	if declared == "" || declared == ".htm" || strings.Contains(contentType, "html") {
		declared = ".html"
	}
	return e.Extract(ctx, body, declared)
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// appendLinkedContent fetches up to maxLinks distinct links found in text. Links
// that cannot be fetched are skipped.
func (e *Extractor) appendLinkedContent(ctx context.Context, text string) string {
	seen := map[string]struct{}{}
	var b strings.Builder
	b.WriteString(text)
	for _, link := range hyperlinkRe.FindAllString(text, -1) {
		if len(seen) >= e.maxLinks {
			break
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}

		target := link
		if strings.HasPrefix(target, "www.") {
			target = "http://" + target
		}
		body, _, err := e.fetch(ctx, target)
		if err != nil {
			log.Warn().Err(err).Str("url", link).Msg("skipping linked page")
			continue
		}
		page, err := e.parseHTML(body)
		if err != nil || strings.TrimSpace(page) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\nContent from %s:\n%s", link, strings.TrimSpace(page))
	}
	return b.String()
}
