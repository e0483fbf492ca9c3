package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/aulahq/aula/internal/chunker"
	"github.com/aulahq/aula/internal/log"
	"github.com/aulahq/aula/internal/provider"
	"github.com/aulahq/aula/internal/vecstore"
)

type stubEmbedder struct {
	calls int
	fail  bool
}

func (s *stubEmbedder) Embed(_ context.Context, _ string, _ provider.Purpose) ([]float32, error) {
	s.calls++
	if s.fail {
		return nil, provider.ErrUnavailable
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (s *stubEmbedder) Available(_ context.Context) bool { return !s.fail }

type captureWriter struct {
	documentID uuid.UUID
	chunks     []vecstore.Chunk
	err        error
}

func (c *captureWriter) ReplaceChunks(_ context.Context, documentID uuid.UUID, chunks []vecstore.Chunk) error {
	c.documentID = documentID
	c.chunks = chunks
	return c.err
}

type captureMarker struct {
	marked []uuid.UUID
}

func (c *captureMarker) MarkProcessed(_ context.Context, id uuid.UUID) error {
	c.marked = append(c.marked, id)
	return nil
}

func TestIndex_ChunksEmbedsAndMarks(t *testing.T) {
	emb := &stubEmbedder{}
	writer := &captureWriter{}
	marker := &captureMarker{}
	ix := NewIndexer(chunker.New(50, 10), emb, writer, marker, log.NewNop())

	doc := Document{
		ID: uuid.New(),
		Content: "Registration opens June 15, 2025. Classes begin in September. " +
			strings.Repeat("The campus library is open every weekday morning. ", 6),
	}

	if err := ix.Index(context.Background(), doc); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	if writer.documentID != doc.ID {
		t.Errorf("ReplaceChunks document = %s, want %s", writer.documentID, doc.ID)
	}
	if len(writer.chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want multiple chunks for long content", len(writer.chunks))
	}
	for i, c := range writer.chunks {
		if c.Ordinal != i {
			t.Errorf("chunk %d ordinal = %d, want contiguous from 0", i, c.Ordinal)
		}
		if c.Embedding == nil {
			t.Errorf("chunk %d has no embedding", i)
		}
		if c.TokenCount != chunker.EstimateTokens(c.Content) {
			t.Errorf("chunk %d token count = %d, want estimate of its content", i, c.TokenCount)
		}
	}
	if emb.calls != len(writer.chunks) {
		t.Errorf("embedder calls = %d, want one per chunk (%d)", emb.calls, len(writer.chunks))
	}
	if len(marker.marked) != 1 || marker.marked[0] != doc.ID {
		t.Errorf("marked = %v, want exactly [%s]", marker.marked, doc.ID)
	}
}

func TestIndex_EmbeddingFailureStoresChunkWithoutVector(t *testing.T) {
	writer := &captureWriter{}
	marker := &captureMarker{}
	ix := NewIndexer(chunker.New(400, 50), &stubEmbedder{fail: true}, writer, marker, log.NewNop())

	doc := Document{ID: uuid.New(), Content: "Tuition is due in August."}
	if err := ix.Index(context.Background(), doc); err != nil {
		t.Fatalf("Index should tolerate embedding failure, got %v", err)
	}

	if len(writer.chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(writer.chunks))
	}
	if writer.chunks[0].Embedding != nil {
		t.Error("chunk embedding should be nil after provider failure")
	}
	if len(marker.marked) != 1 {
		t.Error("document should still be marked processed")
	}
}

func TestIndex_WriterErrorPropagates(t *testing.T) {
	writeErr := errors.New("disk full")
	writer := &captureWriter{err: writeErr}
	ix := NewIndexer(chunker.New(400, 50), &stubEmbedder{}, writer, &captureMarker{}, log.NewNop())

	err := ix.Index(context.Background(), Document{ID: uuid.New(), Content: "short"})
	if !errors.Is(err, writeErr) {
		t.Errorf("Index error = %v, want wrapped writer error", err)
	}
}

// Indexing the same content twice produces identical chunk boundaries.
func TestIndex_Deterministic(t *testing.T) {
	content := strings.Repeat("Enrollment closes at the end of June each year. ", 20)

	var boundaries [2][]string
	for run := 0; run < 2; run++ {
		writer := &captureWriter{}
		ix := NewIndexer(chunker.New(60, 20), &stubEmbedder{}, writer, &captureMarker{}, log.NewNop())
		if err := ix.Index(context.Background(), Document{ID: uuid.New(), Content: content}); err != nil {
			t.Fatalf("Index failed: %v", err)
		}
		for _, c := range writer.chunks {
			boundaries[run] = append(boundaries[run], c.Content)
		}
	}

	if len(boundaries[0]) != len(boundaries[1]) {
		t.Fatalf("chunk counts differ: %d vs %d", len(boundaries[0]), len(boundaries[1]))
	}
	for i := range boundaries[0] {
		if boundaries[0][i] != boundaries[1][i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
