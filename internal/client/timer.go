package client

import (
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/models"
)

// ExpiringThresholdMs is the remaining time below which the countdown is
// flagged as expiring.
const ExpiringThresholdMs = 60_000

// HotSeatTimerState is the derived countdown for the active hot seat. It is
// recomputed from timestamps on every tick, never decremented, so a
// reconnecting or late-joining client lands on the exact correct remaining
// time without replaying anything.
type HotSeatTimerState struct {
	HandRaiseID     uuid.UUID `json:"hand_raise_id"`
	UserID          uuid.UUID `json:"user_id"`
	UserName        string    `json:"user_name"`
	Topic           *string   `json:"topic,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	DurationMs      int64     `json:"duration_ms"`
	ExtensionsMs    int64     `json:"extensions_ms"`
	RemainingMs     int64     `json:"remaining_ms"`
	PercentComplete float64   `json:"percent_complete"`
	IsActive        bool      `json:"is_active"`
	IsExpiring      bool      `json:"is_expiring"`
	IsExpired       bool      `json:"is_expired"`
}

// ComputeTimerState derives the countdown from the active hand raise and the
// current time. A nil entry, a non-active entry, or one that never started
// yields the zero (inactive) state. RemainingMs floors at zero.
func ComputeTimerState(hr *models.HandRaise, now time.Time) HotSeatTimerState {
	if hr == nil || hr.Status != models.HandRaiseStatusActive || hr.HotSeatStartedAt == nil {
		return HotSeatTimerState{}
	}

	durationMs := int64(hr.HotSeatDurationSec) * 1000
	extensionsMs := int64(hr.TimeExtendedSec) * 1000
	totalMs := durationMs + extensionsMs
	elapsedMs := now.Sub(*hr.HotSeatStartedAt).Milliseconds()

	remainingMs := totalMs - elapsedMs
	if remainingMs < 0 {
		remainingMs = 0
	}

	percent := 0.0
	if totalMs > 0 {
		percent = float64(totalMs-remainingMs) / float64(totalMs) * 100
		if percent > 100 {
			percent = 100
		}
	}

	return HotSeatTimerState{
		HandRaiseID:     hr.ID,
		UserID:          hr.UserID,
		UserName:        hr.UserName,
		Topic:           hr.Topic,
		StartedAt:       *hr.HotSeatStartedAt,
		DurationMs:      durationMs,
		ExtensionsMs:    extensionsMs,
		RemainingMs:     remainingMs,
		PercentComplete: percent,
		IsActive:        true,
		IsExpiring:      remainingMs > 0 && remainingMs < ExpiringThresholdMs,
		IsExpired:       remainingMs == 0,
	}
}
