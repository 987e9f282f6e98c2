package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harshgupt/game-telemetry-system/internal/models"
)

const eventsCollection = "game_events"

// duplicateKeyCode is the server error code for unique-index violations.
const duplicateKeyCode = 11000

// MongoStore is the document-store backend. Aggregations are expressed as
// pipelines ($group, $addToSet, $year..$hour decomposition) so grouping runs
// inside the engine, like the Postgres backend's GROUP BY.
type MongoStore struct {
	client *mongo.Client
	events *mongo.Collection
}

// NewMongoStore connects and fails fast if the server is unreachable.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		events: client.Database(database).Collection(eventsCollection),
	}, nil
}

// EnsureSchema creates the unique eventId index and the ts/gameId/terminalId
// lookup indexes. Safe to run multiple times.
func (m *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := m.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "eventId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "ts", Value: 1}}},
		{Keys: bson.D{{Key: "gameId", Value: 1}}},
		{Keys: bson.D{{Key: "terminalId", Value: 1}}},
	})
	return err
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoStore) Close() {
	_ = m.client.Disconnect(context.Background())
}

func (m *MongoStore) InsertEvent(ctx context.Context, e *models.GameEvent) (bool, error) {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	if _, err := m.events.InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("inserting event: %w", err)
	}
	return true, nil
}

// InsertEvents runs an unordered InsertMany so per-item duplicate-key
// violations never abort sibling documents.
func (m *MongoStore) InsertEvents(ctx context.Context, events []*models.GameEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(events))
	for _, e := range events {
		e.CreatedAt = now
		e.UpdatedAt = now
		docs = append(docs, e)
	}

	_, err := m.events.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return int64(len(docs)), nil
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		var dups int64
		for _, we := range bwe.WriteErrors {
			if we.Code != duplicateKeyCode {
				return 0, fmt.Errorf("batch inserting events: %w", err)
			}
			dups++
		}
		return int64(len(docs)) - dups, nil
	}

	return 0, fmt.Errorf("batch inserting events: %w", err)
}

func (m *MongoStore) ListEvents(ctx context.Context, f Filter, limit int64) ([]models.GameEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "ts", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := m.events.Find(ctx, filterDoc(f), opts)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []models.GameEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	return events, nil
}

func (m *MongoStore) DeleteAllEvents(ctx context.Context) error {
	_, err := m.events.DeleteMany(ctx, bson.M{})
	return err
}

func (m *MongoStore) CountSpins(ctx context.Context, f Filter) (int64, error) {
	match := filterDoc(f)
	match["type"] = models.EventSpin

	count, err := m.events.CountDocuments(ctx, match)
	if err != nil {
		return 0, fmt.Errorf("counting spins: %w", err)
	}
	return count, nil
}

func (m *MongoStore) SumTotals(ctx context.Context, f Filter) (Totals, error) {
	pipeline := []bson.M{
		{"$match": filterDoc(f)},
		{"$group": bson.M{
			"_id":      nil,
			"totalBet": bson.M{"$sum": "$bet"},
			"totalWin": bson.M{"$sum": "$win"},
		}},
	}

	var rows []struct {
		TotalBet float64 `bson:"totalBet"`
		TotalWin float64 `bson:"totalWin"`
	}
	if err := m.aggregate(ctx, pipeline, &rows); err != nil {
		return Totals{}, fmt.Errorf("summing totals: %w", err)
	}
	if len(rows) == 0 {
		return Totals{}, nil
	}
	return Totals{TotalBet: rows[0].TotalBet, TotalWin: rows[0].TotalWin}, nil
}

func (m *MongoStore) DailyActivePlayers(ctx context.Context, f Filter, since time.Time) ([]DailyActive, error) {
	match := filterDoc(f)
	match["type"] = models.EventSpin
	mergeTS(match, "$gte", since)

	pipeline := []bson.M{
		{"$match": match},
		{"$group": bson.M{
			"_id": bson.M{
				"year":  bson.M{"$year": "$ts"},
				"month": bson.M{"$month": "$ts"},
				"day":   bson.M{"$dayOfMonth": "$ts"},
			},
			"players": bson.M{"$addToSet": "$playerId"},
		}},
		{"$project": bson.M{
			"_id":   1,
			"count": bson.M{"$size": "$players"},
		}},
	}

	var rows []struct {
		ID struct {
			Year  int `bson:"year"`
			Month int `bson:"month"`
			Day   int `bson:"day"`
		} `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if err := m.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("querying daily active players: %w", err)
	}

	out := make([]DailyActive, 0, len(rows))
	for _, r := range rows {
		out = append(out, DailyActive{
			Day:   time.Date(r.ID.Year, time.Month(r.ID.Month), r.ID.Day, 0, 0, 0, 0, time.UTC),
			Count: r.Count,
		})
	}
	return out, nil
}

func (m *MongoStore) HourlyStats(ctx context.Context, f Filter, from, to time.Time) ([]HourlyTotals, error) {
	match := filterDoc(f)
	mergeTS(match, "$gte", from)
	mergeTS(match, "$lte", to)

	pipeline := []bson.M{
		{"$match": match},
		{"$group": bson.M{
			"_id": bson.M{
				"year":  bson.M{"$year": "$ts"},
				"month": bson.M{"$month": "$ts"},
				"day":   bson.M{"$dayOfMonth": "$ts"},
				"hour":  bson.M{"$hour": "$ts"},
			},
			"totalSpins": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$type", models.EventSpin}}, 1, 0,
			}}},
			"totalBet": bson.M{"$sum": "$bet"},
			"totalWin": bson.M{"$sum": "$win"},
		}},
	}

	var rows []struct {
		ID struct {
			Year  int `bson:"year"`
			Month int `bson:"month"`
			Day   int `bson:"day"`
			Hour  int `bson:"hour"`
		} `bson:"_id"`
		TotalSpins int64   `bson:"totalSpins"`
		TotalBet   float64 `bson:"totalBet"`
		TotalWin   float64 `bson:"totalWin"`
	}
	if err := m.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("querying hourly stats: %w", err)
	}

	out := make([]HourlyTotals, 0, len(rows))
	for _, r := range rows {
		out = append(out, HourlyTotals{
			Hour:       time.Date(r.ID.Year, time.Month(r.ID.Month), r.ID.Day, r.ID.Hour, 0, 0, 0, time.UTC),
			TotalSpins: r.TotalSpins,
			TotalBet:   r.TotalBet,
			TotalWin:   r.TotalWin,
		})
	}
	return out, nil
}

func (m *MongoStore) TopGames(ctx context.Context, f Filter, limit int64) ([]GameTotals, error) {
	pipeline := []bson.M{
		{"$match": filterDoc(f)},
		{"$group": bson.M{
			"_id":      "$gameId",
			"totalBet": bson.M{"$sum": "$bet"},
			"totalWin": bson.M{"$sum": "$win"},
			"spins": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$type", models.EventSpin}}, 1, 0,
			}}},
		}},
		{"$sort": bson.M{"totalBet": -1}},
		{"$limit": limit},
	}

	var rows []struct {
		GameID   *string `bson:"_id"`
		TotalBet float64 `bson:"totalBet"`
		TotalWin float64 `bson:"totalWin"`
		Spins    int64   `bson:"spins"`
	}
	if err := m.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("querying top games: %w", err)
	}

	out := make([]GameTotals, 0, len(rows))
	for _, r := range rows {
		g := GameTotals{TotalBet: r.TotalBet, TotalWin: r.TotalWin, Spins: r.Spins}
		if r.GameID != nil {
			g.GameID = *r.GameID
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *MongoStore) TopTerminals(ctx context.Context, f Filter, limit int64) ([]TerminalTotals, error) {
	pipeline := []bson.M{
		{"$match": filterDoc(f)},
		{"$group": bson.M{
			"_id":      "$terminalId",
			"totalBet": bson.M{"$sum": "$bet"},
			"totalWin": bson.M{"$sum": "$win"},
		}},
		{"$sort": bson.M{"totalBet": -1}},
		{"$limit": limit},
	}

	var rows []struct {
		TerminalID *string `bson:"_id"`
		TotalBet   float64 `bson:"totalBet"`
		TotalWin   float64 `bson:"totalWin"`
	}
	if err := m.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("querying top terminals: %w", err)
	}

	out := make([]TerminalTotals, 0, len(rows))
	for _, r := range rows {
		t := TerminalTotals{TotalBet: r.TotalBet, TotalWin: r.TotalWin}
		if r.TerminalID != nil {
			t.TerminalID = *r.TerminalID
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MongoStore) aggregate(ctx context.Context, pipeline []bson.M, out interface{}) error {
	cursor, err := m.events.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

// filterDoc renders the filter as a $match document.
func filterDoc(f Filter) bson.M {
	match := bson.M{}
	if f.GameID != "" {
		match["gameId"] = f.GameID
	}
	if f.TerminalID != "" {
		match["terminalId"] = f.TerminalID
	}
	if f.StartTime != nil {
		mergeTS(match, "$gte", *f.StartTime)
	}
	if f.EndTime != nil {
		mergeTS(match, "$lte", *f.EndTime)
	}
	return match
}

// mergeTS intersects a ts bound with any bound already present, taking the
// tighter of the two, so a caller-supplied time range and a trend window
// combine instead of overwriting each other.
func mergeTS(match bson.M, op string, t time.Time) {
	cond, ok := match["ts"].(bson.M)
	if !ok {
		cond = bson.M{}
		match["ts"] = cond
	}
	prev, ok := cond[op].(time.Time)
	if !ok {
		cond[op] = t
		return
	}
	switch op {
	case "$gte":
		if t.After(prev) {
			cond[op] = t
		}
	case "$lte":
		if t.Before(prev) {
			cond[op] = t
		}
	}
}
