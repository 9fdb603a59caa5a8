package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "text-embedding-004"
	defaultDimension     = 768
)

// GeminiConfig holds configuration for the Gemini embedding API.
type GeminiConfig struct {
	// Model is the embedding model name, e.g. "text-embedding-004".
	Model string

	// APIKey authenticates requests against the Generative Language API.
	APIKey string

	// BaseURL overrides the API endpoint. Used in tests.
	BaseURL string

	// Dimension is the embedding vector dimension for the model.
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *GeminiConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = defaultGeminiModel
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultGeminiBaseURL
	}
	if c.Dimension == 0 {
		c.Dimension = defaultDimension
	}
}

// Validate validates the configuration.
func (c GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	return nil
}

// GeminiProvider generates embeddings via the Gemini batch embedding API.
type GeminiProvider struct {
	config GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini embedding provider.
func NewGeminiProvider(config GeminiConfig, logger *zap.Logger) (*GeminiProvider, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GeminiProvider{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}, nil
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model,omitempty"`
	Content geminiContent `json:"content"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiEmbedding struct {
	Values []float32 `json:"values"`
}

type geminiBatchResponse struct {
	Embeddings []geminiEmbedding `json:"embeddings"`
}

type geminiEmbedResponse struct {
	Embedding geminiEmbedding `json:"embedding"`
}

// EmbedDocuments generates embeddings for multiple texts in one batch call.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	reqs := make([]geminiEmbedRequest, len(texts))
	for i, text := range texts {
		reqs[i] = geminiEmbedRequest{
			Model:   "models/" + p.config.Model,
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}
	}

	var parsed geminiBatchResponse
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", p.config.BaseURL, p.config.Model)
	if err := p.post(ctx, url, geminiBatchRequest{Requests: reqs}, &parsed); err != nil {
		return nil, err
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProvider, len(parsed.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(parsed.Embeddings))
	for i, e := range parsed.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	var parsed geminiEmbedResponse
	url := fmt.Sprintf("%s/models/%s:embedContent", p.config.BaseURL, p.config.Model)
	req := geminiEmbedRequest{Content: geminiContent{Parts: []geminiPart{{Text: text}}}}
	if err := p.post(ctx, url, req, &parsed); err != nil {
		return nil, err
	}

	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrProvider)
	}
	return parsed.Embedding.Values, nil
}

// post sends a JSON request and decodes the response into out.
// Non-2xx responses are classified into ErrQuota or ErrProvider.
func (p *GeminiProvider) post(ctx context.Context, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		classified := classifyProviderError(resp.StatusCode, string(respBody))
		p.logger.Warn("embedding request rejected",
			zap.String("model", p.config.Model),
			zap.Int("status", resp.StatusCode),
			zap.Bool("quota", IsQuota(classified)),
		)
		return classified
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *GeminiProvider) Dimension() int {
	return p.config.Dimension
}

// Close is a no-op since the provider is a stateless HTTP client.
func (p *GeminiProvider) Close() error {
	return nil
}
