package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeExport(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return path
}

func TestJSONSource_List(t *testing.T) {
	path := writeExport(t, `[
		{"source_key": "news/1", "title": "Open day", "body": "Doors open at nine.", "category": "news"},
		{"source_key": "news/2", "title": "Closure", "body": "Closed on Friday."},
		{"source_key": "events/1", "title": "Fair", "body": "Annual fair."}
	]`)

	src := NewJSONSource(path)

	all, err := src.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("records = %d, want 3", len(all))
	}
	if all[0].SourceKey != "news/1" || all[0].Category != "news" {
		t.Errorf("first record = %+v", all[0])
	}

	news, err := src.List(context.Background(), "news/")
	if err != nil {
		t.Fatalf("List scoped: %v", err)
	}
	if len(news) != 2 {
		t.Errorf("scoped records = %d, want 2", len(news))
	}
}

func TestJSONSource_EmptyPathListsNothing(t *testing.T) {
	src := NewJSONSource("")
	records, err := src.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want 0", len(records))
	}
}

func TestJSONSource_MissingSourceKeyFails(t *testing.T) {
	path := writeExport(t, `[{"title": "no key", "body": "b"}]`)
	if _, err := NewJSONSource(path).List(context.Background(), ""); err == nil {
		t.Fatal("expected error for record without source_key")
	}
}

func TestJSONSource_MissingFileFails(t *testing.T) {
	if _, err := NewJSONSource("/nonexistent/records.json").List(context.Background(), ""); err == nil {
		t.Fatal("expected error for missing export file")
	}
}
