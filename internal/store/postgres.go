package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harshgupt/game-telemetry-system/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the pgx-backed persistence layer for game events.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if the database
// is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by the readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

const insertSQL = `
	INSERT INTO game_events
		(event_id, ts, type, game_id, terminal_id, player_id, currency, denomination, bet, win)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (event_id) DO NOTHING`

// InsertEvent persists an event and returns created=false when it is a
// duplicate. Duplicate detection is enforced by the primary key on event_id,
// which is compatible with client retries and at-least-once delivery.
func (p *PostgresStore) InsertEvent(ctx context.Context, e *models.GameEvent) (bool, error) {
	// RETURNING produces a row only when inserted; duplicates return no rows.
	err := p.pool.QueryRow(ctx, insertSQL+" RETURNING created_at, updated_at",
		e.EventID, e.TS, string(e.Type), nullStr(e.GameID), nullStr(e.TerminalID),
		nullStr(e.PlayerID), nullStr(e.Currency), e.Denomination, e.Bet, e.Win,
	).Scan(&e.CreatedAt, &e.UpdatedAt)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("inserting event: %w", err)
}

// InsertEvents persists a batch over one round trip. Each statement carries
// its own ON CONFLICT DO NOTHING, so a duplicate item never aborts its
// siblings.
func (p *PostgresStore) InsertEvents(ctx context.Context, events []*models.GameEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertSQL,
			e.EventID, e.TS, string(e.Type), nullStr(e.GameID), nullStr(e.TerminalID),
			nullStr(e.PlayerID), nullStr(e.Currency), e.Denomination, e.Bet, e.Win)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range events {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("batch inserting events: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

// ListEvents returns matching events ordered by ts descending.
func (p *PostgresStore) ListEvents(ctx context.Context, f Filter, limit int64) ([]models.GameEvent, error) {
	where, args := filterSQL(f, nil, nil)
	query := `
		SELECT event_id, ts, type,
		       COALESCE(game_id, ''), COALESCE(terminal_id, ''),
		       COALESCE(player_id, ''), COALESCE(currency, ''),
		       denomination, bet, win, created_at, updated_at
		FROM game_events ` + where + `
		ORDER BY ts DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []models.GameEvent{}
	for rows.Next() {
		var e models.GameEvent
		if err := rows.Scan(
			&e.EventID, &e.TS, &e.Type, &e.GameID, &e.TerminalID,
			&e.PlayerID, &e.Currency, &e.Denomination, &e.Bet, &e.Win,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	return events, nil
}

// DeleteAllEvents wipes the table. Used by the seed tool only.
func (p *PostgresStore) DeleteAllEvents(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM game_events`)
	return err
}

// CountSpins counts spin-type events matching the filter.
func (p *PostgresStore) CountSpins(ctx context.Context, f Filter) (int64, error) {
	where, args := filterSQL(f, []string{"type = 'spin'"}, nil)

	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM game_events `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting spins: %w", err)
	}
	return count, nil
}

// SumTotals sums bet and win over all matching events regardless of type.
// NULL amounts contribute zero.
func (p *PostgresStore) SumTotals(ctx context.Context, f Filter) (Totals, error) {
	where, args := filterSQL(f, nil, nil)

	var t Totals
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(bet), 0), COALESCE(SUM(win), 0)
		FROM game_events `+where, args...).Scan(&t.TotalBet, &t.TotalWin)
	if err != nil {
		return Totals{}, fmt.Errorf("summing totals: %w", err)
	}
	return t, nil
}

// DailyActivePlayers groups spin events at or after since by UTC calendar
// day and counts distinct players per day.
func (p *PostgresStore) DailyActivePlayers(ctx context.Context, f Filter, since time.Time) ([]DailyActive, error) {
	where, args := filterSQL(f, []string{"type = 'spin'", "ts >= $1"}, []any{since})

	rows, err := p.pool.Query(ctx, `
		SELECT date_trunc('day', ts AT TIME ZONE 'UTC') AS bucket,
		       COUNT(DISTINCT player_id)
		FROM game_events `+where+`
		GROUP BY bucket
		ORDER BY bucket`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying daily active players: %w", err)
	}
	defer rows.Close()

	var out []DailyActive
	for rows.Next() {
		var d DailyActive
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			return nil, fmt.Errorf("scanning daily bucket: %w", err)
		}
		d.Day = d.Day.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading daily buckets: %w", err)
	}

	return out, nil
}

// HourlyStats groups events with ts in [from, to] by UTC hour.
func (p *PostgresStore) HourlyStats(ctx context.Context, f Filter, from, to time.Time) ([]HourlyTotals, error) {
	where, args := filterSQL(f, []string{"ts >= $1", "ts <= $2"}, []any{from, to})

	rows, err := p.pool.Query(ctx, `
		SELECT date_trunc('hour', ts AT TIME ZONE 'UTC') AS bucket,
		       COUNT(*) FILTER (WHERE type = 'spin'),
		       COALESCE(SUM(bet), 0),
		       COALESCE(SUM(win), 0)
		FROM game_events `+where+`
		GROUP BY bucket
		ORDER BY bucket`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying hourly stats: %w", err)
	}
	defer rows.Close()

	var out []HourlyTotals
	for rows.Next() {
		var h HourlyTotals
		if err := rows.Scan(&h.Hour, &h.TotalSpins, &h.TotalBet, &h.TotalWin); err != nil {
			return nil, fmt.Errorf("scanning hourly bucket: %w", err)
		}
		h.Hour = h.Hour.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading hourly buckets: %w", err)
	}

	return out, nil
}

// TopGames groups all matching events by gameId and ranks by total wagered.
// Tie order among equal totalBet values is whatever the engine yields.
func (p *PostgresStore) TopGames(ctx context.Context, f Filter, limit int64) ([]GameTotals, error) {
	where, args := filterSQL(f, nil, nil)
	args = append(args, limit)

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT COALESCE(game_id, ''),
		       COALESCE(SUM(bet), 0),
		       COALESCE(SUM(win), 0),
		       COUNT(*) FILTER (WHERE type = 'spin')
		FROM game_events %s
		GROUP BY 1
		ORDER BY 2 DESC
		LIMIT $%d`, where, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("querying top games: %w", err)
	}
	defer rows.Close()

	out := []GameTotals{}
	for rows.Next() {
		var g GameTotals
		if err := rows.Scan(&g.GameID, &g.TotalBet, &g.TotalWin, &g.Spins); err != nil {
			return nil, fmt.Errorf("scanning game group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading game groups: %w", err)
	}

	return out, nil
}

// TopTerminals groups all matching events by terminalId and ranks by total
// wagered.
func (p *PostgresStore) TopTerminals(ctx context.Context, f Filter, limit int64) ([]TerminalTotals, error) {
	where, args := filterSQL(f, nil, nil)
	args = append(args, limit)

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT COALESCE(terminal_id, ''),
		       COALESCE(SUM(bet), 0),
		       COALESCE(SUM(win), 0)
		FROM game_events %s
		GROUP BY 1
		ORDER BY 2 DESC
		LIMIT $%d`, where, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("querying top terminals: %w", err)
	}
	defer rows.Close()

	out := []TerminalTotals{}
	for rows.Next() {
		var t TerminalTotals
		if err := rows.Scan(&t.TerminalID, &t.TotalBet, &t.TotalWin); err != nil {
			return nil, fmt.Errorf("scanning terminal group: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading terminal groups: %w", err)
	}

	return out, nil
}

// filterSQL renders f plus any fixed leading clauses into a WHERE clause.
// Leading clauses may reference args passed alongside them; placeholders for
// the filter continue from len(args).
func filterSQL(f Filter, clauses []string, args []any) (string, []any) {
	if f.GameID != "" {
		args = append(args, f.GameID)
		clauses = append(clauses, fmt.Sprintf("game_id = $%d", len(args)))
	}
	if f.TerminalID != "" {
		args = append(args, f.TerminalID)
		clauses = append(clauses, fmt.Sprintf("terminal_id = $%d", len(args)))
	}
	if f.StartTime != nil {
		args = append(args, *f.StartTime)
		clauses = append(clauses, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if f.EndTime != nil {
		args = append(args, *f.EndTime)
		clauses = append(clauses, fmt.Sprintf("ts <= $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// nullStr maps "" to NULL so empty descriptive fields are stored as absent.
func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
