package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tariron/saasodoo-sub008/internal/faults"
	"github.com/tariron/saasodoo-sub008/internal/workload/domain"
)

func TestCreateReturnsHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/workloads" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Spec.Env["DB_HOST"] != "db-1.internal" {
			t.Errorf("DB_HOST = %s, want db-1.internal", req.Spec.Env["DB_HOST"])
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createResponse{Handle: "wl-1000"})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	handle, err := client.Create(context.Background(), 1000, domain.Spec{
		Name: "tenant-x",
		Env:  map[string]string{"DB_HOST": "db-1.internal"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if handle != "wl-1000" {
		t.Fatalf("handle = %s, want wl-1000", handle)
	}
}

func TestCreateAcceptsConflictAsExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(createResponse{Handle: "wl-1010"})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	handle, err := client.Create(context.Background(), 1010, domain.Spec{Name: "tenant-y"})
	if err != nil {
		t.Fatalf("create on conflict: %v", err)
	}
	if handle != "wl-1010" {
		t.Fatalf("handle = %s, want wl-1010", handle)
	}
}

func TestStatusMapsStates(t *testing.T) {
	cases := []struct {
		code  int
		state string
		want  domain.State
	}{
		{http.StatusOK, "ready", domain.StateReady},
		{http.StatusOK, "failed", domain.StateFailed},
		{http.StatusOK, "creating", domain.StatePending},
		{http.StatusNotFound, "", domain.StateFailed},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
			if tc.code == http.StatusOK {
				_ = json.NewEncoder(w).Encode(statusResponse{State: tc.state})
			}
		}))
		client := New(Config{BaseURL: server.URL})

		state, err := client.Status(context.Background(), "wl-1020")
		if err != nil {
			t.Fatalf("status (%d, %q): %v", tc.code, tc.state, err)
		}
		if state != tc.want {
			t.Fatalf("status (%d, %q) = %s, want %s", tc.code, tc.state, state, tc.want)
		}
		server.Close()
	}
}

func TestDeleteTreatsAbsentAsDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	if err := client.Delete(context.Background(), "wl-1030"); err != nil {
		t.Fatalf("delete absent workload: %v", err)
	}
}

func TestCreateMapsServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL})
	_, err := client.Create(context.Background(), 1040, domain.Spec{Name: "tenant-z"})
	if !errors.Is(err, faults.ErrResourceUnavailable) {
		t.Fatalf("server failure = %v, want resource unavailable", err)
	}
}
