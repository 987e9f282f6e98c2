package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// INTEGRATION TEST SUITE
//
// These tests validate the service end-to-end:
//
//   Client → HTTP API → Store → Aggregation → Response
//
// The service must already be running (for example via docker compose),
// against either store backend.
//
// Optional environment override:
//
//   BASE_URL default http://localhost:8080
//
// Every test scopes its data with a unique gameId so runs never collide
// with previous data.
////////////////////////////////////////////////////////////////////////////////

func baseURL() string {
	if v := os.Getenv("BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// unique generates a unique string so tests never collide with previous runs.
func unique(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// waitReady polls /ready until the store and server are up.
func waitReady(t *testing.T) {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(30 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL() + "/ready")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(300 * time.Millisecond)
	}

	t.Fatalf("service not ready after 30s")
}

func httpGet(t *testing.T, path string) (int, []byte) {
	t.Helper()

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Get(baseURL() + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func postJSON(t *testing.T, path string, payload any) (int, []byte) {
	t.Helper()

	b, _ := json.Marshal(payload)
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Post(
		baseURL()+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

// spin builds a spin event payload scoped to gameID.
func spin(eventID, gameID string, ts time.Time, bet, win float64) map[string]any {
	return map[string]any{
		"eventId":    eventID,
		"ts":         ts.UTC().Format(time.RFC3339),
		"type":       "spin",
		"gameId":     gameID,
		"terminalId": gameID + "-term",
		"playerId":   gameID + "-player",
		"bet":        bet,
		"win":        win,
	}
}

func kpisFor(t *testing.T, gameID string) map[string]any {
	t.Helper()

	u, _ := url.Parse(baseURL() + "/api/kpis")
	q := u.Query()
	q.Set("gameId", gameID)
	u.RawQuery = q.Encode()

	s, b := httpGet(t, u.Path+"?"+u.RawQuery)
	if s != http.StatusOK {
		t.Fatalf("kpis expected 200 got %d: %s", s, b)
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("invalid kpis JSON: %v", err)
	}
	return out
}

////////////////////////////////////////////////////////////////////////////////
// HEALTH & READINESS
////////////////////////////////////////////////////////////////////////////////

func TestHealth_ReturnsOK(t *testing.T) {
	s, _ := httpGet(t, "/health")
	if s != http.StatusOK {
		t.Fatalf("health expected 200 got %d", s)
	}
}

func TestReady_ReturnsOK(t *testing.T) {
	waitReady(t)
	s, _ := httpGet(t, "/ready")
	if s != http.StatusOK {
		t.Fatalf("ready expected 200 got %d", s)
	}
}

////////////////////////////////////////////////////////////////////////////////
// INGESTION CONTRACT
////////////////////////////////////////////////////////////////////////////////

func TestEvents_BadRequestOnInvalidPayload(t *testing.T) {
	waitReady(t)

	payload := map[string]any{"eventId": unique("e"), "type": "spin"} // no ts
	s, _ := postJSON(t, "/api/events", payload)
	if s != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", s)
	}
}

func TestEvents_UnknownTypeRejected(t *testing.T) {
	waitReady(t)

	payload := map[string]any{
		"eventId": unique("e"),
		"ts":      time.Now().UTC().Format(time.RFC3339),
		"type":    "jackpot",
	}
	s, _ := postJSON(t, "/api/events", payload)
	if s != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", s)
	}
}

// Duplicate single inserts are downgraded to informational 200s and must
// not change aggregates even with a different payload.
func TestIdempotency_ResubmitDoesNotMerge(t *testing.T) {
	waitReady(t)

	game := unique("idem")
	id := unique("e")
	ts := time.Now().UTC()

	s, _ := postJSON(t, "/api/events", spin(id, game, ts, 2, 0))
	if s != http.StatusCreated {
		t.Fatalf("first insert expected 201 got %d", s)
	}

	s, b := postJSON(t, "/api/events", spin(id, game, ts, 999, 999))
	if s != http.StatusOK {
		t.Fatalf("duplicate expected 200 got %d: %s", s, b)
	}

	kpis := kpisFor(t, game)
	if got := kpis["totalBet"].(float64); got != 2 {
		t.Fatalf("totalBet = %v, want 2 (duplicate must be ignored, not merged)", got)
	}
}

// Batch insert skips duplicates and items without an eventId, committing
// the independent siblings.
func TestBatchInsert_ToleratesDuplicates(t *testing.T) {
	waitReady(t)

	game := unique("batch")
	ts := time.Now().UTC()
	existing := unique("e")

	if s, _ := postJSON(t, "/api/events", spin(existing, game, ts, 1, 0)); s != http.StatusCreated {
		t.Fatalf("setup insert failed: %d", s)
	}

	batch := []map[string]any{
		spin(existing, game, ts, 1, 0), // duplicate
		spin(unique("e"), game, ts, 2, 0),
		spin(unique("e"), game, ts, 3, 0),
		{"ts": ts.Format(time.RFC3339), "type": "spin", "gameId": game}, // no eventId
	}

	s, b := postJSON(t, "/api/events", batch)
	if s != http.StatusCreated {
		t.Fatalf("batch expected 201 got %d: %s", s, b)
	}

	var resp struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		t.Fatalf("invalid batch response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2 (1 duplicate + 1 missing eventId skipped)", resp.Count)
	}
}

////////////////////////////////////////////////////////////////////////////////
// KPI AGGREGATION
////////////////////////////////////////////////////////////////////////////////

// The spec's worked example: two spins bet 2/win 0 and bet 3/win 3 yield
// spins=2, totalBet=5, totalWin=3, rtp=60.00, averageBet=2.50.
func TestKPIs_WorkedExample(t *testing.T) {
	waitReady(t)

	game := unique("kpi")
	ts := time.Now().UTC()

	postJSON(t, "/api/events", spin(unique("e"), game, ts, 2, 0))
	postJSON(t, "/api/events", spin(unique("e"), game, ts, 3, 3))

	kpis := kpisFor(t, game)

	if got := kpis["spins"].(float64); got != 2 {
		t.Errorf("spins = %v, want 2", got)
	}
	if got := kpis["totalBet"].(float64); got != 5 {
		t.Errorf("totalBet = %v, want 5", got)
	}
	if got := kpis["totalWin"].(float64); got != 3 {
		t.Errorf("totalWin = %v, want 3", got)
	}
	if got := kpis["rtp"].(float64); got != 60.00 {
		t.Errorf("rtp = %v, want 60.00", got)
	}
	if got := kpis["averageBet"].(float64); got != 2.50 {
		t.Errorf("averageBet = %v, want 2.50", got)
	}

	topGames := kpis["topGames"].([]any)
	if len(topGames) == 0 || len(topGames) > 5 {
		t.Fatalf("topGames has %d entries, want 1..5", len(topGames))
	}
	first := topGames[0].(map[string]any)
	if first["gameId"] != game || first["totalBet"].(float64) != 5 {
		t.Errorf("topGames[0] = %v, want %s with totalBet 5", first, game)
	}
}

func TestKPIs_TrendsHaveFixedShape(t *testing.T) {
	waitReady(t)

	kpis := kpisFor(t, unique("empty"))
	dau := kpis["dau"].([]any)
	if len(dau) != 30 {
		t.Fatalf("dau has %d points, want 30 regardless of data", len(dau))
	}

	s, b := httpGet(t, "/api/kpis/hourly?gameId="+unique("empty"))
	if s != http.StatusOK {
		t.Fatalf("hourly expected 200 got %d", s)
	}
	var hourly []map[string]any
	if err := json.Unmarshal(b, &hourly); err != nil {
		t.Fatalf("invalid hourly JSON: %v", err)
	}
	if len(hourly) != 24 {
		t.Fatalf("hourly has %d points, want 24 regardless of data", len(hourly))
	}
}

////////////////////////////////////////////////////////////////////////////////
// EVENT QUERIES
////////////////////////////////////////////////////////////////////////////////

func TestRecentEvents_CappedAndDescending(t *testing.T) {
	waitReady(t)

	game := unique("recent")
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		s, _ := postJSON(t, "/api/events", spin(unique("e"), game, base.Add(time.Duration(i)*time.Minute), 1, 0))
		if s != http.StatusCreated {
			t.Fatalf("insert %d failed: %d", i, s)
		}
	}

	s, b := httpGet(t, "/api/events/recent?gameId="+game)
	if s != http.StatusOK {
		t.Fatalf("recent expected 200 got %d", s)
	}

	var events []struct {
		TS time.Time `json:"ts"`
	}
	if err := json.Unmarshal(b, &events); err != nil {
		t.Fatalf("invalid events JSON: %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("recent returned %d events, want 10", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].TS.After(events[i-1].TS) {
			t.Fatalf("events not descending by ts at %d", i)
		}
	}
}
