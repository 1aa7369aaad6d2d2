package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// SourceLanguage is the language all UI text is authored in.
const SourceLanguage = "en"

// MaxTextLength bounds what is sent upstream; longer text is returned as is.
const MaxTextLength = 5000

var ErrEmptyText = errors.New("text is empty")

// Client translates short UI strings and remembers results per language.
type Client struct {
	baseURL string
	client  *resty.Client

	mu    sync.RWMutex
	cache map[string]string
}

func NewClient(baseURL string) *Client {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	return &Client{baseURL: baseURL, client: client, cache: make(map[string]string)}
}

// Translate returns text in lang. English targets return text unchanged.
func (c *Client) Translate(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if lang == "" || lang == SourceLanguage || len(text) > MaxTextLength {
		return text, nil
	}

	key := lang + ":" + text
	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client": "gtx",
			"sl":     SourceLanguage,
			"tl":     lang,
			"dt":     "t",
			"q":      text,
		}).
		Get(c.baseURL + "/translate_a/single")
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("translate: http %d", resp.StatusCode())
	}

	translated, err := parseSegments(resp.Body())
	if err != nil {
		return "", fmt.Errorf("translate decode: %w", err)
	}

	c.mu.Lock()
	c.cache[key] = translated
	c.mu.Unlock()
	return translated, nil
}

// parseSegments joins the translated parts of a gtx response, whose first
// element is a list of [translated, original, ...] tuples.
func parseSegments(body []byte) (string, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", errors.New("empty response")
	}

	var segments [][]any
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	return b.String(), nil
}
