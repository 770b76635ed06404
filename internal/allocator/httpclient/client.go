package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/allocator/domain"
	"github.com/tariron/saasodoo-sub008/internal/faults"
	instancedomain "github.com/tariron/saasodoo-sub008/internal/instance/domain"
	"golang.org/x/sync/semaphore"
)

// Config tunes the allocator client.
type Config struct {
	BaseURL     string
	MaxInFlight int64
	Timeout     time.Duration
}

// Client is the process-lifetime allocator client. The underlying
// http.Client and its connection pool are shared by every worker;
// constructing one per task exhausts file descriptors under load.
type Client struct {
	cfg  Config
	http *http.Client
	sem  *semaphore.Weighted
}

// New builds the pooled client with its concurrency ceiling.
func New(cfg Config) *Client {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        int(cfg.MaxInFlight),
		MaxIdleConnsPerHost: int(cfg.MaxInFlight),
		MaxConnsPerHost:     int(cfg.MaxInFlight),
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		sem: semaphore.NewWeighted(cfg.MaxInFlight),
	}
}

type allocateRequest struct {
	InstanceID string `json:"instance_id"`
	DBType     string `json:"db_type"`
}

// Allocate requests a backend for the instance. Over-ceiling calls are
// rejected immediately with ErrBusy rather than queued.
func (c *Client) Allocate(ctx context.Context, instanceID snowflake.ID, dbType instancedomain.DBType) (*domain.AllocateResult, error) {
	if !c.sem.TryAcquire(1) {
		return nil, faults.ErrBusy
	}
	defer c.sem.Release(1)

	body, err := json.Marshal(allocateRequest{
		InstanceID: instanceID.String(),
		DBType:     string(dbType),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/allocate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return nil, fmt.Errorf("allocator at capacity: %w", faults.ErrResourceUnavailable)
	default:
		return nil, fmt.Errorf("allocator returned %d: %w", resp.StatusCode, faults.ErrResourceUnavailable)
	}

	var result domain.AllocateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode allocator response: %w", err)
	}
	if result.ServerID == "" || result.Credentials.Host == "" {
		return nil, fmt.Errorf("allocator returned incomplete result: %w", faults.ErrResourceUnavailable)
	}
	return &result, nil
}

// Release tears down the backend for the instance.
func (c *Client) Release(ctx context.Context, instanceID snowflake.ID) error {
	if !c.sem.TryAcquire(1) {
		return faults.ErrBusy
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/allocations/"+instanceID.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		// Absent is fine: release is idempotent.
		return nil
	default:
		return fmt.Errorf("allocator release returned %d: %w", resp.StatusCode, faults.ErrResourceUnavailable)
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("allocator: %w", faults.ErrDownstreamTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("allocator: %w", faults.ErrDownstreamTimeout)
	}
	return fmt.Errorf("allocator unreachable: %w", faults.ErrResourceUnavailable)
}
