package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/thicket/internal/reliability"
)

// OllamaOracle forwards queries to an Ollama-compatible /api/generate endpoint.
type OllamaOracle struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
}

func NewOllamaOracle(baseURL, model string, timeout time.Duration) *OllamaOracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "llama3.1"
	}
	return &OllamaOracle{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:   model,
		timeout: timeout,
		// The per-call context carries the deadline; the client itself is unbounded.
		client: &http.Client{},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (o *OllamaOracle) Query(ctx context.Context, prompt string, wc WorkingContext) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	payload, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Format:  "json",
		Options: generateOptions{Temperature: 0.7, TopP: 0.9},
	})
	if err != nil {
		return "", newError(KindTransport, "ollama", wc, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", newError(KindTransport, "ollama", wc, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := o.client.Do(req)
	if err != nil {
		if ce := classifyContext(callCtx, "ollama", wc, o.timeout); ce != nil {
			return "", ce
		}
		return "", newError(KindTransport, "ollama", wc, "send request", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		if ce := classifyContext(callCtx, "ollama", wc, o.timeout); ce != nil {
			return "", ce
		}
		return "", newError(KindTransport, "ollama", wc, "read response", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail := fmt.Sprintf("status %d: %s", res.StatusCode, strings.TrimSpace(string(truncate(body, 4<<10))))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return "", newError(KindTransport, "ollama", wc, detail, nil)
		}
		return "", newError(KindProvider, "ollama", wc, detail, nil)
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", newError(KindProvider, "ollama", wc, "decode response", err)
	}
	if msg := strings.TrimSpace(out.Error); msg != "" {
		return "", newError(KindProvider, "ollama", wc, msg, nil)
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", newError(KindProvider, "ollama", wc, "empty reply", nil)
	}
	return text, nil
}

// Ping checks that the service answers on /api/tags.
func (o *OllamaOracle) Ping(ctx context.Context) error {
	_, err := o.Models(ctx)
	return err
}

// Models lists the models the service has available.
func (o *OllamaOracle) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	res, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect to ollama: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama tags status %d", res.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(res.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
