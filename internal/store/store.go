package store

import (
	"context"
	"fmt"
	"time"

	"github.com/harshgupt/game-telemetry-system/internal/models"
)

// Filter narrows event reads and aggregations. Zero-value fields are
// ignored; StartTime/EndTime bound ts inclusively on both ends.
type Filter struct {
	GameID     string
	TerminalID string
	StartTime  *time.Time
	EndTime    *time.Time
}

// Totals is a bet/win sum over a filtered set of events, regardless of type.
type Totals struct {
	TotalBet float64
	TotalWin float64
}

// DailyActive is one calendar day's distinct-player count among spin events.
// Day is the UTC start of that day.
type DailyActive struct {
	Day   time.Time
	Count int64
}

// HourlyTotals is one hour bucket's spin count and bet/win sums.
// Hour is the UTC start of the bucket.
type HourlyTotals struct {
	Hour       time.Time
	TotalSpins int64
	TotalBet   float64
	TotalWin   float64
}

// GameTotals ranks a game by wagered amount.
type GameTotals struct {
	GameID   string  `json:"gameId"`
	TotalBet float64 `json:"totalBet"`
	TotalWin float64 `json:"totalWin"`
	Spins    int64   `json:"spins"`
}

// TerminalTotals ranks a terminal by wagered amount.
type TerminalTotals struct {
	TerminalID string  `json:"terminalId"`
	TotalBet   float64 `json:"totalBet"`
	TotalWin   float64 `json:"totalWin"`
}

// Store is the persistence port for game events. Two backends implement it:
// Postgres (pgx) and Mongo. Grouping, summing, distinct counts and calendar
// decomposition are pushed down to the engine; callers only merge and
// window-fill the returned buckets.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	// EnsureSchema creates tables/collections and indexes. Safe to rerun.
	EnsureSchema(ctx context.Context) error

	// InsertEvent persists one event, returning created=false when an event
	// with the same eventId already exists (idempotent, not an error).
	InsertEvent(ctx context.Context, e *models.GameEvent) (bool, error)

	// InsertEvents persists a batch without aborting on per-item duplicate
	// conflicts and returns the number actually inserted.
	InsertEvents(ctx context.Context, events []*models.GameEvent) (int64, error)

	// ListEvents returns matching events ordered by ts descending.
	// limit <= 0 means no limit.
	ListEvents(ctx context.Context, f Filter, limit int64) ([]models.GameEvent, error)

	// DeleteAllEvents wipes the collection. Used by the seed tool only.
	DeleteAllEvents(ctx context.Context) error

	CountSpins(ctx context.Context, f Filter) (int64, error)
	SumTotals(ctx context.Context, f Filter) (Totals, error)

	// DailyActivePlayers groups spin events at or after since by calendar
	// day (UTC) and counts distinct playerIds per day.
	DailyActivePlayers(ctx context.Context, f Filter, since time.Time) ([]DailyActive, error)

	// HourlyStats groups events with ts in [from, to] by hour (UTC).
	HourlyStats(ctx context.Context, f Filter, from, to time.Time) ([]HourlyTotals, error)

	TopGames(ctx context.Context, f Filter, limit int64) ([]GameTotals, error)
	TopTerminals(ctx context.Context, f Filter, limit int64) ([]TerminalTotals, error)
}

// Open constructs the backend named by driver.
func Open(ctx context.Context, driver, dbURL, mongoURI, mongoDB string) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgresStore(ctx, dbURL)
	case "mongo":
		return NewMongoStore(ctx, mongoURI, mongoDB)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
