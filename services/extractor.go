package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/models"
)

// PDFExtractor downloads guidance PDFs and extracts per-page text. Page
// numbers survive into chunks so citations can point at them.
type PDFExtractor struct {
	maxDownload int64
	client      *http.Client
}

func NewPDFExtractor(maxDownload int64) *PDFExtractor {
	return &PDFExtractor{
		maxDownload: maxDownload,
		client: &http.Client{
			Timeout: 120 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// Fetch downloads the PDF at url. Failures here are classified as fetch
// errors: DNS, timeouts, non-2xx responses, truncated or oversized bodies.
func (e *PDFExtractor) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrorKindFetch, Err: err}
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrorKindFetch, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.PipelineError{
			Kind: models.ErrorKindFetch,
			Err:  fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url),
		}
	}

	// Read one byte past the cap to tell "exactly at cap" from "over it"
	content, err := io.ReadAll(io.LimitReader(resp.Body, e.maxDownload+1))
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrorKindFetch, Err: err}
	}
	if int64(len(content)) > e.maxDownload {
		return nil, &models.PipelineError{
			Kind: models.ErrorKindFetch,
			Err:  fmt.Errorf("pdf exceeds download cap of %d bytes", e.maxDownload),
		}
	}
	if len(content) == 0 {
		return nil, &models.PipelineError{
			Kind: models.ErrorKindFetch,
			Err:  fmt.Errorf("empty response body from %s", url),
		}
	}

	return content, nil
}

// ExtractPages parses the PDF and returns non-empty pages in order, 1-based.
// Failures here are classified as parse errors and are not retried, parsing
// the same bytes again cannot succeed.
func (e *PDFExtractor) ExtractPages(content []byte) ([]models.PageText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &models.PipelineError{
			Kind: models.ErrorKindParse,
			Err:  fmt.Errorf("failed to open PDF: %w", err),
		}
	}

	numPages := reader.NumPage()
	pages := make([]models.PageText, 0, numPages)

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, models.PageText{Page: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, &models.PipelineError{
			Kind: models.ErrorKindParse,
			Err:  fmt.Errorf("no extractable text in PDF (%d pages)", numPages),
		}
	}

	if quality := evaluateTextQuality(pages); quality < 0.3 {
		return nil, &models.PipelineError{
			Kind: models.ErrorKindParse,
			Err:  fmt.Errorf("extracted text unusable, quality score %.2f", quality),
		}
	}

	return pages, nil
}

// evaluateTextQuality scores extracted text between 0 and 1. Scanned or
// corrupted PDFs produce mostly replacement characters and near-zero
// alphanumeric content.
func evaluateTextQuality(pages []models.PageText) float64 {
	var alphanumeric, corrupted, total int

	for _, p := range pages {
		for _, r := range p.Text {
			total++
			switch {
			case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
				alphanumeric++
			case r == '�':
				corrupted++
			}
		}
	}

	if total == 0 {
		return 0.0
	}

	score := float64(alphanumeric) / float64(total)
	score -= 2.0 * float64(corrupted) / float64(total)

	if score < 0 {
		score = 0
	}
	return score
}
