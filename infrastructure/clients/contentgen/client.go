package contentgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"social-publisher/domain/model"
)

const maxResponseBytes = 1 << 20

// Client calls the upstream caption service.
type Client struct {
	http   *http.Client
	url    string
	apiKey string
}

func NewClient(httpClient *http.Client, url, apiKey string, timeout time.Duration) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{http: httpClient, url: url, apiKey: apiKey}
}

type generateRequest struct {
	Instruction string   `json:"instruction"`
	Platforms   []string `json:"platforms"`
}

// Generate returns one caption per requested platform. The service answers
// with {"captions": {...}}, a bare object keyed by platform, or a single
// string used for every platform.
func (c *Client) Generate(ctx context.Context, instruction string, platforms []model.Platform) (map[model.Platform]string, error) {
	reqBody := generateRequest{Instruction: instruction, Platforms: make([]string, 0, len(platforms))}
	for _, p := range platforms {
		reqBody.Platforms = append(reqBody.Platforms, string(p))
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content service: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("content service: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("content service: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return parseCaptions(body, platforms)
}

func parseCaptions(body []byte, platforms []model.Platform) (map[model.Platform]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("content service: empty response")
	}

	var text string
	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("content service: %w", err)
		}
		return fill(text, platforms), nil
	case '{':
		var envelope struct {
			Captions json.RawMessage `json:"captions"`
			Content  *string         `json:"content"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("content service: %w", err)
		}
		if len(envelope.Captions) > 0 {
			return parseCaptions(envelope.Captions, platforms)
		}
		if envelope.Content != nil {
			return fill(*envelope.Content, platforms), nil
		}
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, fmt.Errorf("content service: %w", err)
		}
		out := make(map[model.Platform]string, len(keyed))
		for k, v := range keyed {
			p, ok := model.ParsePlatform(k)
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out[p] = s
			}
		}
		return out, nil
	default:
		// plain text body
		return fill(string(trimmed), platforms), nil
	}
}

func fill(text string, platforms []model.Platform) map[model.Platform]string {
	text = strings.TrimSpace(text)
	out := make(map[model.Platform]string, len(platforms))
	if text == "" {
		return out
	}
	for _, p := range platforms {
		out[p] = text
	}
	return out
}
