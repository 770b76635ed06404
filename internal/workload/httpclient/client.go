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
	"github.com/tariron/saasodoo-sub008/internal/faults"
	"github.com/tariron/saasodoo-sub008/internal/workload/domain"
	"golang.org/x/sync/semaphore"
)

// Config tunes the scheduler client.
type Config struct {
	BaseURL     string
	MaxInFlight int64
	Timeout     time.Duration
}

// Client talks to the workload scheduler over HTTP. One instance per
// process; the connection pool and the in-flight ceiling are shared by
// all workers.
type Client struct {
	cfg  Config
	http *http.Client
	sem  *semaphore.Weighted
}

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

type createRequest struct {
	InstanceID string      `json:"instance_id"`
	Spec       domain.Spec `json:"spec"`
}

type createResponse struct {
	Handle string `json:"handle"`
}

type statusResponse struct {
	State string `json:"state"`
}

func (c *Client) Create(ctx context.Context, instanceID snowflake.ID, spec domain.Spec) (string, error) {
	if !c.sem.TryAcquire(1) {
		return "", faults.ErrBusy
	}
	defer c.sem.Release(1)

	body, err := json.Marshal(createRequest{InstanceID: instanceID.String(), Spec: spec})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/workloads", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		// Conflict means the workload already exists; the scheduler
		// returns its handle either way.
	default:
		return "", fmt.Errorf("scheduler returned %d: %w", resp.StatusCode, faults.ErrResourceUnavailable)
	}

	var decoded createResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode scheduler response: %w", err)
	}
	if decoded.Handle == "" {
		return "", fmt.Errorf("scheduler returned empty handle: %w", faults.ErrResourceUnavailable)
	}
	return decoded.Handle, nil
}

func (c *Client) Status(ctx context.Context, handle string) (domain.State, error) {
	if !c.sem.TryAcquire(1) {
		return "", faults.ErrBusy
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/workloads/"+handle, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.StateFailed, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scheduler status returned %d: %w", resp.StatusCode, faults.ErrResourceUnavailable)
	}

	var decoded statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode scheduler status: %w", err)
	}
	switch domain.State(decoded.State) {
	case domain.StateReady:
		return domain.StateReady, nil
	case domain.StateFailed:
		return domain.StateFailed, nil
	default:
		return domain.StatePending, nil
	}
}

func (c *Client) Delete(ctx context.Context, handle string) error {
	if !c.sem.TryAcquire(1) {
		return faults.ErrBusy
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/workloads/"+handle, nil)
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
		return nil
	default:
		return fmt.Errorf("scheduler delete returned %d: %w", resp.StatusCode, faults.ErrResourceUnavailable)
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("scheduler: %w", faults.ErrDownstreamTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scheduler: %w", faults.ErrDownstreamTimeout)
	}
	return fmt.Errorf("scheduler unreachable: %w", faults.ErrResourceUnavailable)
}
