package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/vectorstore"
)

type fakeRetriever struct {
	results []vectorstore.SearchResult
	err     error

	gotCollection string
	gotOwner      string
	gotQuery      string
	gotK          int
}

func (f *fakeRetriever) Retrieve(_ context.Context, collectionName, ownerID, query string, k int, _ float32) ([]vectorstore.SearchResult, error) {
	f.gotCollection = collectionName
	f.gotOwner = ownerID
	f.gotQuery = query
	f.gotK = k
	return f.results, f.err
}

type fakeCompleter struct {
	gotPrompt string
	stream    []string
	err       error
}

func (f *fakeCompleter) StreamComplete(_ context.Context, prompt string, fn func(string) error) error {
	f.gotPrompt = prompt
	if f.err != nil {
		return f.err
	}
	for _, chunk := range f.stream {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func chunkResult(content, source string) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		Content:  content,
		Score:    0.9,
		Metadata: map[string]interface{}{"source": source},
	}
}

func TestAnswer_StreamsGroundedCompletion(t *testing.T) {
	retriever := &fakeRetriever{results: []vectorstore.SearchResult{
		chunkResult("func main() {}", "cmd/main.go"),
		chunkResult("type Server struct {}", "internal/server.go"),
	}}
	completer := &fakeCompleter{stream: []string{"The entry ", "point is main."}}
	svc := NewService(retriever, completer, zap.NewNop())

	var got strings.Builder
	err := svc.Answer(context.Background(), "demo_repo", "u1", "where is the entrypoint?", 4, func(chunk string) error {
		got.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "The entry point is main.", got.String())

	assert.Equal(t, "demo_repo", retriever.gotCollection)
	assert.Equal(t, "u1", retriever.gotOwner)
	assert.Equal(t, "where is the entrypoint?", retriever.gotQuery)
	assert.Equal(t, 4, retriever.gotK)

	// Prompt carries every chunk with its source path and the question.
	assert.Contains(t, completer.gotPrompt, "source: cmd/main.go")
	assert.Contains(t, completer.gotPrompt, "func main() {}")
	assert.Contains(t, completer.gotPrompt, "source: internal/server.go")
	assert.Contains(t, completer.gotPrompt, "where is the entrypoint?")
}

func TestAnswer_NoContext(t *testing.T) {
	svc := NewService(&fakeRetriever{}, &fakeCompleter{}, zap.NewNop())

	err := svc.Answer(context.Background(), "demo_repo", "u1", "anything?", 4, func(string) error {
		t.Fatal("no stream expected")
		return nil
	})
	require.ErrorIs(t, err, ErrNoContext)
}

func TestAnswer_RetrieverError(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("store unavailable")}
	svc := NewService(retriever, &fakeCompleter{}, zap.NewNop())

	err := svc.Answer(context.Background(), "demo_repo", "u1", "q", 4, func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieving context")
}

func TestAnswer_CallbackErrorAbortsStream(t *testing.T) {
	retriever := &fakeRetriever{results: []vectorstore.SearchResult{chunkResult("x", "a.go")}}
	completer := &fakeCompleter{stream: []string{"one", "two"}}
	svc := NewService(retriever, completer, zap.NewNop())

	calls := 0
	err := svc.Answer(context.Background(), "demo_repo", "u1", "q", 4, func(string) error {
		calls++
		return errors.New("consumer gone")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBuildPrompt_UnknownSource(t *testing.T) {
	prompt := buildPrompt([]vectorstore.SearchResult{{Content: "data"}}, "q")
	assert.Contains(t, prompt, "source: unknown")
}
