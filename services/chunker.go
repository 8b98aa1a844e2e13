package services

import (
	"regexp"
	"strings"

	"github.com/seehafer/fda-guidance-navigator/models"
)

// Chunker splits extracted pages into overlapping windows sized by an
// estimated token budget. Chunking is deterministic: the same pages with the
// same settings always produce the same chunk set, which keeps re-ingestion
// fingerprint comparisons meaningful.
type Chunker struct {
	chunkSize    int // target tokens per chunk
	overlap      int // tokens carried over into the next chunk
	headingRegex *regexp.Regexp
}

func NewChunker(chunkSize, overlap int) *Chunker {
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		// Guidance documents number their sections "IV. Scope" or "3.2 Labeling"
		headingRegex: regexp.MustCompile(`^(?:[IVXLC]+\.|\d+(?:\.\d+)*\.?)\s+\S`),
	}
}

type chunkWord struct {
	text    string
	page    int
	section string
}

// Chunk produces the full ordered chunk set for a document. Ordinals are
// contiguous from zero, page ranges never decrease between adjacent chunks.
func (c *Chunker) Chunk(pages []models.PageText) []models.Chunk {
	words := c.annotate(pages)
	if len(words) == 0 {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	for start < len(words) {
		end := start
		tokens := 0
		for end < len(words) && tokens < c.chunkSize {
			tokens += wordTokens(words[end].text)
			end++
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = words[i].text
		}

		chunks = append(chunks, models.Chunk{
			Ordinal:    len(chunks),
			Text:       strings.Join(texts, " "),
			PageStart:  words[start].page,
			PageEnd:    words[end-1].page,
			Section:    words[start].section,
			TokenCount: tokens,
		})

		if end >= len(words) {
			break
		}

		// Walk back until the overlap budget is covered, while always
		// making forward progress.
		nextStart := end
		carried := 0
		for nextStart > start+1 && carried < c.overlap {
			nextStart--
			carried += wordTokens(words[nextStart].text)
		}
		start = nextStart
	}

	return chunks
}

// annotate flattens pages into a word stream, each word tagged with its page
// and the most recent section heading seen before it.
func (c *Chunker) annotate(pages []models.PageText) []chunkWord {
	var words []chunkWord
	section := ""

	for _, p := range pages {
		for _, line := range strings.Split(p.Text, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if c.isHeading(trimmed) {
				section = trimmed
			}
			for _, w := range strings.Fields(trimmed) {
				words = append(words, chunkWord{text: w, page: p.Page, section: section})
			}
		}
	}

	return words
}

func (c *Chunker) isHeading(line string) bool {
	if len(line) > 80 {
		return false
	}
	if c.headingRegex.MatchString(line) {
		return true
	}
	// All-caps lines with at least two words read as headings too
	letters := 0
	lower := 0
	for _, r := range line {
		if r >= 'A' && r <= 'Z' {
			letters++
		}
		if r >= 'a' && r <= 'z' {
			lower++
		}
	}
	return letters >= 4 && lower == 0 && strings.Contains(line, " ")
}

// wordTokens estimates the token cost of one word. Roughly 4 characters per
// token, plus the separating space, never less than one.
func wordTokens(word string) int {
	tokens := (len(word) + 1) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
