// Command seed populates the local development database with randomized
// spin events so the dashboard has something to render. It wipes existing
// events first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/harshgupt/game-telemetry-system/internal/config"
	"github.com/harshgupt/game-telemetry-system/internal/models"
	"github.com/harshgupt/game-telemetry-system/internal/store"
)

// Profile controls the shape of the generated fixture. Defaults match the
// dashboard demo: 8 games, 6 terminals, 20 players, 3 currencies, 400 spins
// spread over the trailing 20 days.
type Profile struct {
	Games      int      `yaml:"games"`
	Terminals  int      `yaml:"terminals"`
	Players    int      `yaml:"players"`
	Currencies []string `yaml:"currencies"`
	Events     int      `yaml:"events"`
	Days       int      `yaml:"days"`
}

func defaultProfile() Profile {
	return Profile{
		Games:      8,
		Terminals:  6,
		Players:    20,
		Currencies: []string{"USD", "EUR", "INR"},
		Events:     400,
		Days:       20,
	}
}

func loadProfile(path string) (Profile, error) {
	p := defaultProfile()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func main() {
	var profilePath string
	var seedVal int64

	flag.StringVar(&profilePath, "profile", "", "YAML profile overriding the generated fixture shape")
	flag.Int64Var(&seedVal, "seed", 0, "random seed for reproducibility (0 = time-based)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	profile, err := loadProfile(profilePath)
	if err != nil {
		logger.Error("failed to load profile", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.StoreDriver, cfg.DBURL, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("failed to connect to store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	if err := st.DeleteAllEvents(ctx); err != nil {
		logger.Error("failed to clear old events", "error", err)
		os.Exit(1)
	}
	logger.Info("cleared old game events")

	if seedVal == 0 {
		seedVal = time.Now().UnixNano()
	}
	events := generate(rand.New(rand.NewSource(seedVal)), profile)

	inserted, err := st.InsertEvents(ctx, events)
	if err != nil {
		logger.Error("failed to insert events", "error", err)
		os.Exit(1)
	}

	logger.Info("seeding complete", "inserted", inserted, "seed", seedVal)
}

// generate builds randomized spin events: bets of 1–5 units, a 35% win
// chance paying 1.2–3.0x, timestamps spread over the trailing profile.Days.
func generate(rng *rand.Rand, p Profile) []*models.GameEvent {
	games := idPool("game", p.Games)
	terminals := idPool("terminal", p.Terminals)
	players := idPool("player", p.Players)

	now := time.Now().UTC()
	denom := 1.0

	events := make([]*models.GameEvent, 0, p.Events)
	for i := 0; i < p.Events; i++ {
		bet := float64(1 + rng.Intn(5))
		win := 0.0
		if rng.Float64() < 0.35 {
			win = math.Round(bet*(1.2+rng.Float64()*1.8)*100) / 100
		}
		ts := now.Add(-time.Duration(rng.Intn(p.Days*24)) * time.Hour)

		events = append(events, &models.GameEvent{
			EventID:      "evt_" + uuid.New().String(),
			TS:           ts,
			Type:         models.EventSpin,
			GameID:       games[rng.Intn(len(games))],
			TerminalID:   terminals[rng.Intn(len(terminals))],
			PlayerID:     players[rng.Intn(len(players))],
			Currency:     p.Currencies[rng.Intn(len(p.Currencies))],
			Denomination: &denom,
			Bet:          &bet,
			Win:          &win,
		})
	}
	return events
}

func idPool(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s_%d", prefix, i+1)
	}
	return out
}
