package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLookupUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "ali" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]string{
				{"id": "u1", "name": "Alice", "email": "alice@x.com"},
			},
		})
	}))
	defer srv.Close()

	users, err := NewClient(srv.URL, "").LookupUsers(context.Background(), "ali", 5)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(users) != 1 || users[0].Email != "alice@x.com" {
		t.Fatalf("users = %+v", users)
	}
}

func TestLookupUsersEmptyPrefixSkipsCall(t *testing.T) {
	client := NewClient("http://directory.invalid", "")
	users, err := client.LookupUsers(context.Background(), "  ", 5)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("users = %+v, want none", users)
	}
}

func TestLookupUsersAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "token expired"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "bad").LookupUsers(context.Background(), "ali", 5)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Message != "token expired" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}
