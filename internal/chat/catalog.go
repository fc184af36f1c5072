package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
)

// Option is one selectable catalog entry.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// PersonaCatalog lists the selectable models, prompt templates and formats.
type PersonaCatalog struct {
	Models   []Option `json:"models"`
	Prompts  []Option `json:"prompts"`
	Formats  []Option `json:"formats"`
	Fallback bool     `json:"fallback"`
}

var (
	defaultModels = []Option{
		{ID: "estj", Label: "ESTJ Personality Model"},
		{ID: "infp", Label: "INFP Personality Model"},
		{ID: "base_1", Label: "Base Model 1"},
		{ID: "base_2", Label: "Base Model 2"},
	}
	defaultPrompts = []Option{
		{ID: "assist_estj", Label: "ESTJ Assistant"},
		{ID: "assist_infp", Label: "INFP Assistant"},
		{ID: "base", Label: "Base Prompt"},
	}
	defaultFormats = []Option{
		{ID: "ordinary", Label: "Ordinary Format"},
		{ID: "custom", Label: "Custom Format"},
	}
)

// DefaultCatalog returns the built-in options used when the backend is unavailable.
func DefaultCatalog() PersonaCatalog {
	return PersonaCatalog{
		Models:   append([]Option(nil), defaultModels...),
		Prompts:  append([]Option(nil), defaultPrompts...),
		Formats:  append([]Option(nil), defaultFormats...),
		Fallback: true,
	}
}

// Catalog fetches the three template lists concurrently. Each list that cannot
// be fetched falls back to the built-in options.
func (c *Client) Catalog(ctx context.Context) PersonaCatalog {
	var (
		wg  sync.WaitGroup
		out PersonaCatalog
		mu  sync.Mutex
	)
	fetch := func(path string, fallback []Option, dst *[]Option) {
		defer wg.Done()
		opts, err := c.fetchOptions(ctx, path)
		mu.Lock()
		defer mu.Unlock()
		if err != nil || len(opts) == 0 {
			if err != nil {
				slog.Warn("catalog fetch failed", "path", path, "error", err)
			}
			*dst = append([]Option(nil), fallback...)
			out.Fallback = true
			return
		}
		*dst = opts
	}
	wg.Add(3)
	go fetch("/model_templates", defaultModels, &out.Models)
	go fetch("/prompt_templates", defaultPrompts, &out.Prompts)
	go fetch("/promptFormat_templates", defaultFormats, &out.Formats)
	wg.Wait()
	return out
}

func (c *Client) fetchOptions(ctx context.Context, path string) ([]Option, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("status %d: %s", res.StatusCode, string(body))
	}

	var m map[string]string
	if err := json.NewDecoder(res.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	opts := make([]Option, 0, len(m))
	for id, label := range m {
		opts = append(opts, Option{ID: id, Label: label})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].ID < opts[j].ID })
	return opts, nil
}
