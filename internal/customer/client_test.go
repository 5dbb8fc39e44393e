package customer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestProfileClientGetProfile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/profiles/cust-1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"age_range":"AGE_22_TO_30","is_parent":true,"home_region":"us-east"}`))
		case "/profiles/ghost":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewProfileClient(srv.URL, time.Second, time.Minute, zap.NewNop(), nil)
	ctx := context.Background()

	p, err := c.GetProfile(ctx, "cust-1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.AgeRange != Age22To30 || !p.IsParent || p.HomeRegion != "us-east" {
		t.Errorf("profile = %+v", p)
	}

	// Second call within the TTL must be served from cache.
	if _, err := c.GetProfile(ctx, "cust-1"); err != nil {
		t.Fatalf("cached GetProfile: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}

	// An unknown customer is the zero profile, not an error.
	p, err = c.GetProfile(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetProfile(ghost): %v", err)
	}
	if p != (Profile{}) {
		t.Errorf("profile for unknown customer = %+v, want zero", p)
	}

	if _, err := c.GetProfile(ctx, "cust-err"); err == nil {
		t.Error("http 500 should surface as an error")
	}
}

func TestProfileClientClearCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"age_range":"AGE_18_TO_21"}`))
	}))
	defer srv.Close()

	c := NewProfileClient(srv.URL, time.Second, time.Minute, zap.NewNop(), nil)
	ctx := context.Background()

	if _, err := c.GetProfile(ctx, "cust-1"); err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	c.ClearCache()
	if _, err := c.GetProfile(ctx, "cust-1"); err != nil {
		t.Fatalf("GetProfile after clear: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestSpendClientGetSpendByCategory(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/customers/ghost/spend" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("marketplace"); got != "mk-us" {
			t.Errorf("marketplace query = %q, want mk-us", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"books":{"purchase_count":4,"amount_spent":9900}}`))
	}))
	defer srv.Close()

	c := NewSpendClient(srv.URL, time.Second, time.Minute, zap.NewNop(), nil)
	ctx := context.Background()

	spend, err := c.GetSpendByCategory(ctx, "cust-1", "mk-us")
	if err != nil {
		t.Fatalf("GetSpendByCategory: %v", err)
	}
	if got := spend["books"]; got.PurchaseCount != 4 || got.AmountSpent != 9900 {
		t.Errorf("books spend = %+v", got)
	}

	if _, err := c.GetSpendByCategory(ctx, "cust-1", "mk-us"); err != nil {
		t.Fatalf("cached GetSpendByCategory: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}

	// 404 means no spend history: empty map, no error.
	spend, err = c.GetSpendByCategory(ctx, "ghost", "mk-us")
	if err != nil {
		t.Fatalf("GetSpendByCategory(ghost): %v", err)
	}
	if len(spend) != 0 {
		t.Errorf("spend for unknown customer = %+v, want empty", spend)
	}
}

func TestBenefitClientGetBenefits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers/cust-1/benefits":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`["media_streaming","free_shipping"]`))
		case "/customers/ghost/benefits":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewBenefitClient(srv.URL, time.Second, time.Minute, zap.NewNop(), nil)
	ctx := context.Background()

	benefits, err := c.GetBenefits(ctx, "cust-1", "mk-us")
	if err != nil {
		t.Fatalf("GetBenefits: %v", err)
	}
	if len(benefits) != 2 || benefits[0] != "media_streaming" {
		t.Errorf("benefits = %v", benefits)
	}

	benefits, err = c.GetBenefits(ctx, "ghost", "mk-us")
	if err != nil {
		t.Fatalf("GetBenefits(ghost): %v", err)
	}
	if len(benefits) != 0 {
		t.Errorf("benefits for unknown customer = %v, want none", benefits)
	}

	if _, err := c.GetBenefits(ctx, "cust-bad", "mk-us"); err == nil {
		t.Error("http 502 should surface as an error")
	}
}
