package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harshgupt/game-telemetry-system/internal/models"
	"github.com/harshgupt/game-telemetry-system/internal/store"
)

// RegisterEventRoutes registers the ingestion and event-query endpoints.
//
// POST /events          — one event object or an array of them
// GET  /events          — filtered list, ts descending
// GET  /events/recent   — 10 most recent matching events
func RegisterEventRoutes(r gin.IRoutes, st store.Store) {
	r.POST("/events", func(c *gin.Context) {
		var raw json.RawMessage
		if err := c.ShouldBindJSON(&raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		if isJSONArray(raw) {
			insertBatch(c, st, raw)
			return
		}
		insertOne(c, st, raw)
	})

	r.GET("/events", func(c *gin.Context) {
		f, err := parseFilter(c, true)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		events, err := st.ListEvents(c.Request.Context(), f, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
			return
		}
		c.JSON(http.StatusOK, events)
	})

	r.GET("/events/recent", func(c *gin.Context) {
		f, err := parseFilter(c, false)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		events, err := st.ListEvents(c.Request.Context(), f, recentLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
			return
		}
		c.JSON(http.StatusOK, events)
	})
}

const recentLimit = 10

// insertOne handles the single-event path: full validation, then an
// idempotent insert. A duplicate eventId downgrades to an informational 200
// without mutating state.
func insertOne(c *gin.Context, st store.Store, raw json.RawMessage) {
	var e models.GameEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}
	if err := e.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := st.InsertEvent(c.Request.Context(), &e)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "duplicate entry ignored"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "game event saved successfully",
		"data":    e,
	})
}

// insertBatch handles the array path. Items failing validation are dropped
// silently; the rest go down in one batch that tolerates per-item duplicate
// conflicts. The reported count is the number actually inserted.
func insertBatch(c *gin.Context, st store.Store, raw json.RawMessage) {
	var candidates []*models.GameEvent
	if err := json.Unmarshal(raw, &candidates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	valid := make([]*models.GameEvent, 0, len(candidates))
	for _, e := range candidates {
		if e != nil && e.Validate() == nil {
			valid = append(valid, e)
		}
	}

	count, err := st.InsertEvents(c.Request.Context(), valid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "bulk events inserted successfully",
		"count":   count,
	})
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// parseFilter reads the shared query parameters. Time bounds are accepted
// only where the contract exposes them and must be RFC3339.
func parseFilter(c *gin.Context, withTimes bool) (store.Filter, error) {
	f := store.Filter{
		GameID:     c.Query("gameId"),
		TerminalID: c.Query("terminalId"),
	}
	if !withTimes {
		return f, nil
	}

	if v := c.Query("startTime"); v != "" {
		t, err := parseRFC3339(v)
		if err != nil {
			return store.Filter{}, errBadStartTime
		}
		f.StartTime = &t
	}
	if v := c.Query("endTime"); v != "" {
		t, err := parseRFC3339(v)
		if err != nil {
			return store.Filter{}, errBadEndTime
		}
		f.EndTime = &t
	}
	return f, nil
}

var (
	errBadStartTime = errors.New("startTime must be RFC3339")
	errBadEndTime   = errors.New("endTime must be RFC3339")
)

// parseRFC3339 parses an RFC3339 timestamp and normalizes it to UTC.
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
