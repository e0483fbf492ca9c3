package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aulahq/aula/internal/content"
	"github.com/aulahq/aula/internal/provider"
)

// ErrAuthoringFailed is returned when no provider produced a usable draft.
var ErrAuthoringFailed = errors.New("content authoring failed")

// maxAuthoringInput caps how much raw text goes into one authoring prompt.
const maxAuthoringInput = 8000

// draftPayload mirrors the JSON shape the authoring prompt demands.
type draftPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Excerpt  string `json:"excerpt"`
	Category string `json:"category"`
}

var validCategories = map[string]bool{
	"news": true, "event": true, "announcement": true, "general": true,
}

// Author drafts reviewable content from raw ingested text using the same
// provider chain as answering. The model's output is parsed strictly; a
// malformed draft from one provider advances to the next.
func (o *Orchestrator) Author(ctx context.Context, rawText string) (content.Draft, error) {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return content.Draft{}, ErrAuthoringFailed
	}
	if len(rawText) > maxAuthoringInput {
		// Back off to a rune boundary so the prompt never ends mid-rune.
		cut := maxAuthoringInput
		for cut > 0 && !utf8.RuneStart(rawText[cut]) {
			cut--
		}
		rawText = rawText[:cut]
	}

	req := provider.GenerateRequest{System: authoringSystemPrompt, Prompt: rawText}

	for _, gen := range o.chain {
		if !gen.Available(ctx) {
			continue
		}
		if err := o.pacer.Wait(ctx); err != nil {
			return content.Draft{}, err
		}

		res := gen.Generate(ctx, req)
		if res.Status == provider.GenerateFatal {
			o.logger.Error("authoring request unprocessable", "backend", gen.Name(), "error", res.Err)
			return content.Draft{}, ErrAuthoringFailed
		}
		if res.Status != provider.GenerateOK {
			o.logger.Warn("authoring attempt failed, trying next", "backend", gen.Name(), "error", res.Err)
			continue
		}

		draft, err := parseDraft(res.Text)
		if err != nil {
			o.logger.Warn("unparseable draft, trying next backend", "backend", gen.Name(), "error", err)
			continue
		}
		return draft, nil
	}

	return content.Draft{}, fmt.Errorf("%w: %w", ErrAuthoringFailed, provider.ErrExhausted)
}

// parseDraft decodes the model's JSON, tolerating markdown fences some
// models insist on adding.
func parseDraft(text string) (content.Draft, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var p draftPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return content.Draft{}, err
	}
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Body) == "" {
		return content.Draft{}, errors.New("draft missing title or body")
	}
	if !validCategories[p.Category] {
		p.Category = "general"
	}

	return content.Draft{
		Title:    strings.TrimSpace(p.Title),
		Body:     strings.TrimSpace(p.Body),
		Excerpt:  strings.TrimSpace(p.Excerpt),
		Category: p.Category,
	}, nil
}
