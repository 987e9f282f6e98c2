// Package kpi assembles the dashboard's aggregate figures from store-side
// grouped reads: scalar summary statistics, the 30-day daily-active-users
// trend, the 24-hour hourly trend and the top-5 game/terminal breakdowns.
package kpi

import (
	"context"
	"math"
	"time"

	"github.com/harshgupt/game-telemetry-system/internal/store"
)

const (
	topLimit   = 5
	dauDays    = 30
	trendHours = 24
)

// Service computes KPIs under an optional filter. The clock is injectable so
// tests can pin "now" and assert exact trend-bucket boundaries.
type Service struct {
	store store.Store
	now   func() time.Time
}

func New(st store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// NewWithClock pins the wall clock. Test constructor.
func NewWithClock(st store.Store, now func() time.Time) *Service {
	return &Service{store: st, now: now}
}

// DailyPoint is one day of the DAU trend. Date is a date-only key
// (YYYY-MM-DD, UTC).
type DailyPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// HourlyPoint is one bucket of the hourly trend. Date is the bucket's start
// instant, Hour its hour-of-day number.
type HourlyPoint struct {
	Hour       int       `json:"hour"`
	Date       time.Time `json:"date"`
	TotalSpins int64     `json:"totalSpins"`
	TotalBet   float64   `json:"totalBet"`
	TotalWin   float64   `json:"totalWin"`
}

// Summary is the composite /kpis response. Its figures are independent reads
// against the store; under concurrent ingestion they may reflect slightly
// different snapshots.
type Summary struct {
	Spins        int64                  `json:"spins"`
	TotalBet     float64                `json:"totalBet"`
	TotalWin     float64                `json:"totalWin"`
	RTP          float64                `json:"rtp"`
	AverageBet   float64                `json:"averageBet"`
	DAU          []DailyPoint           `json:"dau"`
	TopGames     []store.GameTotals     `json:"topGames"`
	TopTerminals []store.TerminalTotals `json:"topTerminals"`
}

// Summary computes the composite KPI response. Any store failure fails the
// whole response; partial results are never returned.
func (s *Service) Summary(ctx context.Context, f store.Filter) (*Summary, error) {
	spins, err := s.store.CountSpins(ctx, f)
	if err != nil {
		return nil, err
	}

	totals, err := s.store.SumTotals(ctx, f)
	if err != nil {
		return nil, err
	}

	dau, err := s.dauTrend(ctx, f)
	if err != nil {
		return nil, err
	}

	topGames, err := s.store.TopGames(ctx, f, topLimit)
	if err != nil {
		return nil, err
	}

	topTerminals, err := s.store.TopTerminals(ctx, f, topLimit)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		Spins:        spins,
		TotalBet:     totals.TotalBet,
		TotalWin:     totals.TotalWin,
		DAU:          dau,
		TopGames:     topGames,
		TopTerminals: topTerminals,
	}
	// RTP is zero-guarded on the wagered side: no bets means 0%, even when
	// wins exist.
	if totals.TotalBet > 0 {
		out.RTP = round2(totals.TotalWin / totals.TotalBet * 100)
	}
	if spins > 0 {
		out.AverageBet = round2(totals.TotalBet / float64(spins))
	}

	return out, nil
}

// dauTrend returns exactly 30 points, one per calendar day, oldest first,
// ending today. Days without matching spins report zero.
func (s *Service) dauTrend(ctx context.Context, f store.Filter) ([]DailyPoint, error) {
	now := s.now().UTC()
	since := now.AddDate(0, 0, -dauDays)

	rows, err := s.store.DailyActivePlayers(ctx, f, since)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[dayKey(r.Day)] = r.Count
	}

	trend := make([]DailyPoint, 0, dauDays)
	for i := dauDays - 1; i >= 0; i-- {
		key := dayKey(now.AddDate(0, 0, -i))
		trend = append(trend, DailyPoint{Date: key, Count: counts[key]})
	}
	return trend, nil
}

// HourlyTrend returns exactly 24 buckets, one per hour, oldest first, ending
// at the current hour, over events with ts in [now-24h, now]. Buckets without
// matching events report zeros.
func (s *Service) HourlyTrend(ctx context.Context, f store.Filter) ([]HourlyPoint, error) {
	now := s.now().UTC()
	from := now.Add(-trendHours * time.Hour)

	rows, err := s.store.HourlyStats(ctx, f, from, now)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]store.HourlyTotals, len(rows))
	for _, r := range rows {
		buckets[hourKey(r.Hour)] = r
	}

	cur := now.Truncate(time.Hour)
	trend := make([]HourlyPoint, 0, trendHours)
	for i := trendHours - 1; i >= 0; i-- {
		start := cur.Add(-time.Duration(i) * time.Hour)
		p := HourlyPoint{Hour: start.Hour(), Date: start}
		if b, ok := buckets[hourKey(start)]; ok {
			p.TotalSpins = b.TotalSpins
			p.TotalBet = b.TotalBet
			p.TotalWin = b.TotalWin
		}
		trend = append(trend, p)
	}
	return trend, nil
}

// dayKey and hourKey are the single bucket-identity rule shared between
// aggregation-result merging and fixed-window filling. Hour keys carry the
// full date so buckets 24h apart never collide.

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func hourKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}

// round2 rounds to 2 decimal places for display.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
