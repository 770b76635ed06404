package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tariron/saasodoo-sub008/internal/allocator/domain"
	"github.com/tariron/saasodoo-sub008/internal/faults"
	instancedomain "github.com/tariron/saasodoo-sub008/internal/instance/domain"
)

func TestAllocateDecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/allocate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req allocateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.DBType != "dedicated" {
			t.Errorf("db_type = %s, want dedicated", req.DBType)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.AllocateResult{
			ServerID: "db-9",
			Credentials: domain.Credentials{
				Host: "db-9.internal", Port: 5432, User: "tenant", Password: "pw", Database: "tenant_db",
			},
		})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	result, err := client.Allocate(context.Background(), 900, instancedomain.DBTypeDedicated)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if result.ServerID != "db-9" {
		t.Fatalf("server_id = %s, want db-9", result.ServerID)
	}
	if result.Handle() != "db-9/tenant_db" {
		t.Fatalf("handle = %s, want db-9/tenant_db", result.Handle())
	}
}

func TestAllocateMapsCapacityResponses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		client := New(Config{BaseURL: server.URL})

		_, err := client.Allocate(context.Background(), 910, instancedomain.DBTypeShared)
		if !errors.Is(err, faults.ErrResourceUnavailable) {
			t.Fatalf("status %d = %v, want resource unavailable", status, err)
		}
		if !faults.Retryable(err) {
			t.Fatalf("status %d should be retryable", status)
		}
		server.Close()
	}
}

func TestAllocateFailsFastAtCeiling(t *testing.T) {
	inFlight := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight <- struct{}{}
		<-release
		_ = json.NewEncoder(w).Encode(domain.AllocateResult{
			ServerID: "db-9",
			Credentials: domain.Credentials{
				Host: "db-9.internal", Port: 5432, User: "tenant", Password: "pw", Database: "tenant_db",
			},
		})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, MaxInFlight: 1, Timeout: 5 * time.Second})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = client.Allocate(context.Background(), 920, instancedomain.DBTypeShared)
	}()

	// The only slot is held once the server sees the request.
	<-inFlight

	if _, err := client.Allocate(context.Background(), 921, instancedomain.DBTypeShared); !errors.Is(err, faults.ErrBusy) {
		t.Fatalf("over-ceiling call = %v, want busy", err)
	}

	close(release)
	wg.Wait()
}

func TestReleaseTreatsAbsentAsDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	if err := client.Release(context.Background(), 930); err != nil {
		t.Fatalf("release on absent allocation: %v", err)
	}
}

func TestAllocateRejectsIncompleteResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.AllocateResult{ServerID: "db-9"})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	_, err := client.Allocate(context.Background(), 940, instancedomain.DBTypeShared)
	if !errors.Is(err, faults.ErrResourceUnavailable) {
		t.Fatalf("incomplete result = %v, want resource unavailable", err)
	}
}
