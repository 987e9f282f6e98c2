package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/harshgupt/game-telemetry-system/internal/store"
)

func TestGetKPIs_ResponseShape(t *testing.T) {
	var gotFilter store.Filter
	fs := &fakeStore{
		countSpins: func(_ context.Context, f store.Filter) (int64, error) {
			gotFilter = f
			return 0, nil
		},
	}
	r := newRouter(fs)

	w := doJSON(t, r, http.MethodGet, "/api/kpis?gameId=g1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if gotFilter.GameID != "g1" {
		t.Errorf("filter gameId = %q, want g1", gotFilter.GameID)
	}

	var body struct {
		Spins        int64                   `json:"spins"`
		DAU          []struct{ Date string } `json:"dau"`
		TopGames     []map[string]any        `json:"topGames"`
		TopTerminals []map[string]any        `json:"topTerminals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.DAU) != 30 {
		t.Errorf("dau has %d points, want 30 even with no data", len(body.DAU))
	}
	if body.TopGames == nil || body.TopTerminals == nil {
		t.Error("top lists must be present (empty arrays, not null)")
	}
}

func TestGetKPIs_StoreFailureIsOpaque(t *testing.T) {
	fs := &fakeStore{
		countSpins: func(context.Context, store.Filter) (int64, error) {
			return 0, errors.New("dial tcp: connection refused")
		},
	}
	r := newRouter(fs)

	w := doJSON(t, r, http.MethodGet, "/api/kpis", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "server error" {
		t.Errorf("error payload = %v, want opaque server error", body["error"])
	}
}

func TestGetKPIs_RejectsBadTimestamp(t *testing.T) {
	r := newRouter(&fakeStore{})

	w := doJSON(t, r, http.MethodGet, "/api/kpis?endTime=tomorrow", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetHourlyKPIs_ResponseShape(t *testing.T) {
	fs := &fakeStore{
		hourlyStats: func(context.Context, store.Filter, time.Time, time.Time) ([]store.HourlyTotals, error) {
			return nil, nil
		},
	}
	r := newRouter(fs)

	w := doJSON(t, r, http.MethodGet, "/api/kpis/hourly", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var trend []struct {
		Hour       int       `json:"hour"`
		Date       time.Time `json:"date"`
		TotalSpins int64     `json:"totalSpins"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &trend); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(trend) != 24 {
		t.Fatalf("trend has %d points, want 24 even with no data", len(trend))
	}
	for i := 1; i < len(trend); i++ {
		if !trend[i].Date.Equal(trend[i-1].Date.Add(time.Hour)) {
			t.Fatalf("buckets not consecutive at %d", i)
		}
	}
}

func TestGetHourlyKPIs_StoreFailure(t *testing.T) {
	fs := &fakeStore{
		hourlyStats: func(context.Context, store.Filter, time.Time, time.Time) ([]store.HourlyTotals, error) {
			return nil, errors.New("timeout")
		},
	}
	r := newRouter(fs)

	w := doJSON(t, r, http.MethodGet, "/api/kpis/hourly", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
