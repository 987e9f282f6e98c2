package models

import (
	"errors"
	"time"
)

// EventType is the closed set of telemetry events a terminal can emit.
type EventType string

const (
	EventSpin         EventType = "spin"
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventVoucherPrint EventType = "voucher_print"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventSpin, EventSessionStart, EventSessionEnd, EventVoucherPrint:
		return true
	}
	return false
}

var (
	ErrMissingEventID   = errors.New("eventId is required")
	ErrMissingTimestamp = errors.New("ts is required")
	ErrInvalidEventType = errors.New("type must be one of spin, session_start, session_end, voucher_print")
)

// GameEvent is the sole persisted entity: one discrete occurrence on a
// slot/arcade terminal. EventID is caller-assigned and globally unique;
// a second insert with the same EventID is ignored, never merged.
//
// Denomination, Bet and Win are pointers so an absent amount survives the
// round trip to storage as NULL/missing rather than a literal zero.
// Aggregation treats absent as zero.
type GameEvent struct {
	EventID    string    `json:"eventId" bson:"eventId"`
	TS         time.Time `json:"ts" bson:"ts"`
	Type       EventType `json:"type" bson:"type"`
	GameID     string    `json:"gameId,omitempty" bson:"gameId,omitempty"`
	TerminalID string    `json:"terminalId,omitempty" bson:"terminalId,omitempty"`
	PlayerID   string    `json:"playerId,omitempty" bson:"playerId,omitempty"`
	Currency   string    `json:"currency,omitempty" bson:"currency,omitempty"`

	Denomination *float64 `json:"denomination,omitempty" bson:"denomination,omitempty"`
	Bet          *float64 `json:"bet,omitempty" bson:"bet,omitempty"`
	Win          *float64 `json:"win,omitempty" bson:"win,omitempty"`

	// Audit timestamps, set by the store at persistence time.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Validate checks the required fields. ts arrives through JSON as RFC3339;
// a missing field leaves the zero time, which is rejected here rather than
// silently coerced.
func (e *GameEvent) Validate() error {
	if e.EventID == "" {
		return ErrMissingEventID
	}
	if e.TS.IsZero() {
		return ErrMissingTimestamp
	}
	if !e.Type.Valid() {
		return ErrInvalidEventType
	}
	return nil
}
