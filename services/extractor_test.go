package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seehafer/fda-guidance-navigator/models"
)

func TestFetchClassifiesHTTPFailuresAsFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	extractor := NewPDFExtractor(1 << 20)
	_, err := extractor.Fetch(context.Background(), server.URL+"/missing.pdf")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if kind := models.ErrorKindOf(err); kind != models.ErrorKindFetch {
		t.Errorf("error kind = %q, want fetch", kind)
	}
}

func TestFetchEnforcesDownloadCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	extractor := NewPDFExtractor(1024)
	_, err := extractor.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error for oversized body")
	}
	if kind := models.ErrorKindOf(err); kind != models.ErrorKindFetch {
		t.Errorf("error kind = %q, want fetch", kind)
	}
}

func TestFetchAcceptsBodyAtCap(t *testing.T) {
	body := strings.Repeat("y", 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	extractor := NewPDFExtractor(1024)
	content, err := extractor.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(content) != 1024 {
		t.Errorf("got %d bytes, want 1024", len(content))
	}
}

func TestExtractPagesClassifiesGarbageAsParse(t *testing.T) {
	extractor := NewPDFExtractor(1 << 20)
	_, err := extractor.ExtractPages([]byte("this is not a pdf at all"))
	if err == nil {
		t.Fatal("expected error for non-PDF bytes")
	}
	if kind := models.ErrorKindOf(err); kind != models.ErrorKindParse {
		t.Errorf("error kind = %q, want parse", kind)
	}
}

func TestEvaluateTextQuality(t *testing.T) {
	good := []models.PageText{{Page: 1, Text: "The sponsor should submit documentation describing the device design."}}
	if score := evaluateTextQuality(good); score < 0.5 {
		t.Errorf("clean prose scored %.2f, want >= 0.5", score)
	}

	corrupt := []models.PageText{{Page: 1, Text: strings.Repeat("�", 50)}}
	if score := evaluateTextQuality(corrupt); score != 0 {
		t.Errorf("replacement characters scored %.2f, want 0", score)
	}

	if score := evaluateTextQuality(nil); score != 0 {
		t.Errorf("empty input scored %.2f, want 0", score)
	}
}
