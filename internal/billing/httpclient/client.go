package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tariron/saasodoo-sub008/internal/billing/domain"
)

// Config tunes the ledger client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client speaks the subscription ledger's callback-management API.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type callbackList struct {
	Callbacks []struct {
		URL string `json:"url"`
	} `json:"callbacks"`
}

func (c *Client) ListCallbacks(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/callbacks", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list callbacks: %w", domain.ErrLedgerUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list callbacks returned %d: %w", resp.StatusCode, domain.ErrLedgerUnavailable)
	}

	var decoded callbackList
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode callback list: %w", err)
	}
	urls := make([]string, 0, len(decoded.Callbacks))
	for _, cb := range decoded.Callbacks {
		urls = append(urls, cb.URL)
	}
	return urls, nil
}

func (c *Client) RegisterCallback(ctx context.Context, url string) error {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/callbacks", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("register callback: %w", domain.ErrLedgerUnavailable)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict:
		return domain.ErrCallbackExists
	default:
		return fmt.Errorf("register callback returned %d: %w", resp.StatusCode, domain.ErrLedgerUnavailable)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
