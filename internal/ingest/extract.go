package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText flattens an item payload to plain text. HTML payloads are
// parsed and stripped of script/style noise; anything else passes through
// trimmed. Extraction never fails: an unparseable payload falls back to
// the raw text.
func ExtractText(payload string) string {
	trimmed := strings.TrimSpace(payload)
	if !looksLikeHTML(trimmed) {
		return trimmed
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return trimmed
	}

	doc.Find("script, style, noscript").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	// Collapse runs of whitespace the markup left behind.
	return strings.Join(strings.Fields(text), " ")
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<div") ||
		strings.Contains(lower, "<p>") ||
		strings.Contains(lower, "<br")
}
