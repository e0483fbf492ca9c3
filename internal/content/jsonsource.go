package content

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// JSONSource reads records from a JSON export file: a flat array of
// objects with source_key, title, body, excerpt and category fields. It
// is the built-in RecordSource adapter; platforms with their own record
// storage implement RecordSource directly instead.
type JSONSource struct {
	path string
}

// NewJSONSource creates a source backed by the export file at path. An
// empty path is a valid no-record source.
func NewJSONSource(path string) *JSONSource {
	return &JSONSource{path: path}
}

type jsonRecord struct {
	SourceKey string `json:"source_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Excerpt   string `json:"excerpt,omitempty"`
	Category  string `json:"category,omitempty"`
}

// List returns the records whose source key starts with sourceKey; empty
// matches everything. The file is re-read per call so sync picks up
// fresh exports without a restart.
func (s *JSONSource) List(_ context.Context, sourceKey string) ([]Record, error) {
	if s.path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read record export %s: %w", s.path, err)
	}

	var rows []jsonRecord
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse record export %s: %w", s.path, err)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		if row.SourceKey == "" {
			return nil, fmt.Errorf("record export %s: entry %d has no source_key", s.path, i)
		}
		if sourceKey != "" && !strings.HasPrefix(row.SourceKey, sourceKey) {
			continue
		}
		records = append(records, Record{
			SourceKey: row.SourceKey,
			Title:     row.Title,
			Body:      row.Body,
			Excerpt:   row.Excerpt,
			Category:  row.Category,
		})
	}
	return records, nil
}
