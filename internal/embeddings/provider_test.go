package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmbeddingsConfig
		wantErr error
	}{
		{
			name: "gemini",
			cfg:  config.EmbeddingsConfig{Provider: "gemini", APIKey: "key"},
		},
		{
			name: "default is gemini",
			cfg:  config.EmbeddingsConfig{APIKey: "key"},
		},
		{
			name: "static",
			cfg:  config.EmbeddingsConfig{Provider: "static", Dimension: 16},
		},
		{
			name:    "gemini without key",
			cfg:     config.EmbeddingsConfig{Provider: "gemini"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown",
			cfg:     config.EmbeddingsConfig{Provider: "openai"},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg, zap.NewNop())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, provider)
			assert.Greater(t, provider.Dimension(), 0)
			assert.NoError(t, provider.Close())
		})
	}
}

func TestStaticProvider_Deterministic(t *testing.T) {
	provider := NewStaticProvider(32)
	ctx := context.Background()

	first, err := provider.EmbedQuery(ctx, "some chunk of source code")
	require.NoError(t, err)
	second, err := provider.EmbedQuery(ctx, "some chunk of source code")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 32)

	other, err := provider.EmbedQuery(ctx, "a different text")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestStaticProvider_Normalized(t *testing.T) {
	provider := NewStaticProvider(8)

	vec, err := provider.EmbedQuery(context.Background(), "normalize me")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 0.001)
}

func TestStaticProvider_BatchMatchesQuery(t *testing.T) {
	provider := NewStaticProvider(8)
	ctx := context.Background()

	batch, err := provider.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	single, err := provider.EmbedQuery(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, single, batch[0])
}

func TestStaticProvider_EmptyInput(t *testing.T) {
	provider := NewStaticProvider(8)

	_, err := provider.EmbedDocuments(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = provider.EmbedQuery(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyInput)
}
