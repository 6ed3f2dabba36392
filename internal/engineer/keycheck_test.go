package engineer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestKeyValidator_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   KeyCheck
	}{
		{"ok", http.StatusOK, KeyCheck{Valid: true}},
		{"malformed key", http.StatusBadRequest, KeyCheck{Category: CategoryInvalid}},
		{"unauthorized", http.StatusUnauthorized, KeyCheck{Category: CategoryPermission}},
		{"forbidden", http.StatusForbidden, KeyCheck{Category: CategoryPermission}},
		{"rate limited", http.StatusTooManyRequests, KeyCheck{Category: CategoryQuota}},
		{"server error", http.StatusInternalServerError, KeyCheck{Category: CategoryUnknown}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			v := NewKeyValidator(WithValidationBaseURL(srv.URL), WithHTTPClient(srv.Client()))
			if got := v.Check(context.Background(), "AIza-test"); got != tc.want {
				t.Errorf("Check = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestKeyValidator_EmptyKeySkipsProbe(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	v := NewKeyValidator(WithValidationBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	got := v.Check(context.Background(), "")
	if got.Valid || got.Category != CategoryEmpty {
		t.Errorf("Check = %+v, want empty category", got)
	}
	if hits.Load() != 0 {
		t.Error("empty key still probed the provider")
	}
}

func TestKeyValidator_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	v := NewKeyValidator(WithValidationBaseURL(url))
	got := v.Check(context.Background(), "AIza-test")
	if got.Valid || got.Category != CategoryNetwork {
		t.Errorf("Check = %+v, want network category", got)
	}
}

func TestKeyValidator_ProbeShape(t *testing.T) {
	var path, key, pageSize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.URL.Query().Get("key")
		pageSize = r.URL.Query().Get("pageSize")
	}))
	defer srv.Close()

	v := NewKeyValidator(WithValidationBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if got := v.Check(context.Background(), "AIza/We+ird"); !got.Valid {
		t.Fatalf("Check = %+v, want valid", got)
	}

	if path != "/v1beta/models" {
		t.Errorf("path = %q, want /v1beta/models", path)
	}
	if key != "AIza/We+ird" {
		t.Errorf("key = %q, want the raw key round-tripped", key)
	}
	if pageSize != "1" {
		t.Errorf("pageSize = %q, want 1", pageSize)
	}
}
