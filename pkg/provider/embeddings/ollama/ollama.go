// Package ollama embeds text through a local Ollama server.
//
// Deployments that must keep caller transcripts on-premises can point the
// memory layer at Ollama (https://ollama.com) instead of a cloud embeddings
// API. The provider speaks Ollama's native /api/embed endpoint and works with
// its embedding models, for example nomic-embed-text or mxbai-embed-large.
//
//	p, err := ollama.New("", "nomic-embed-text") // http://localhost:11434
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := p.Embed(ctx, "query: caller prefers afternoon appointments")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/voxgate/voxgate/pkg/provider/embeddings"
)

// DefaultBaseURL points at an Ollama server on its standard local port.
const DefaultBaseURL = "http://localhost:11434"

var _ embeddings.Provider = (*Provider)(nil)

// modelDims maps recognised embedding model names (tag stripped) to their
// output vector length.
var modelDims = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// Provider calls an Ollama server for embeddings. Safe for concurrent use.
//
// The vector length is resolved from, in order: the WithDimensions option,
// the built-in table of recognised model names, or a one-time probe request
// issued on the first Dimensions call. The probe result is cached for the
// Provider's lifetime.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client

	dims      int
	probeOnce sync.Once
	probeErr  error
}

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout bounds each HTTP request. Zero or negative means no timeout,
// which is the default.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithDimensions fixes the embedding dimension up front. This skips both the
// model-name table and the probe request that an unrecognised model would
// otherwise trigger on the first Dimensions call.
func WithDimensions(dims int) Option {
	return func(p *Provider) {
		p.dims = dims
	}
}

// New constructs a Provider for the given server and model.
//
// An empty baseURL selects DefaultBaseURL; a trailing slash is stripped.
// model is the Ollama model name and must not be empty.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}

	if p.dims == 0 {
		// Recognised models resolve from the table so Dimensions never has
		// to touch the network. The ":latest" style tag is not part of the
		// model family name.
		family, _, _ := strings.Cut(strings.ToLower(model), ":")
		p.dims = modelDims[family]
	}
	return p, nil
}

// Embed returns the embedding vector for one text. The text goes to Ollama
// verbatim; model-specific prefixes such as nomic's "query: " are the
// caller's job.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.post(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("ollama embeddings: embed: empty response")
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one /api/embed request. The result keeps
// the input order and length. Errors return nil without partial results, and
// an empty or nil texts slice returns (nil, nil) without a network round
// trip.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.post(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: embed batch: expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

// Dimensions returns the vector length this provider produces. An
// unrecognised model without WithDimensions costs one probe request against
// the live server the first time; a failed probe caches the error and
// Dimensions reports 0.
func (p *Provider) Dimensions() int {
	if p.dims != 0 {
		return p.dims
	}
	p.probeOnce.Do(func() {
		vecs, err := p.post(context.Background(), []string{"probe"})
		if err != nil {
			p.probeErr = err
			return
		}
		if len(vecs) > 0 {
			p.dims = len(vecs[0])
		}
	})
	return p.dims
}

// ModelID returns the model name given to New.
func (p *Provider) ModelID() string {
	return p.model
}

// post issues a POST /api/embed and decodes the vectors. Cancellation flows
// through the request context.
func (p *Provider) post(ctx context.Context, texts []string) ([][]float32, error) {
	payload := struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: p.model, Input: texts}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embeddings in response")
	}
	return result.Embeddings, nil
}
