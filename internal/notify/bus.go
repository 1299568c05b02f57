// Package notify fans analysis status changes out to live subscribers.
package notify

import (
	"context"
	"time"
)

// Event is a status change of one analysis.
type Event struct {
	AnalysisID string    `json:"analysisId"`
	Status     string    `json:"status"`
	Score      *int      `json:"score,omitempty"`
	Violations *int      `json:"violations,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher emits events. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus is a Publisher that also delivers events for one analysis to subscribers.
// The returned channel is closed once ctx is done.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, analysisID string) (<-chan Event, error)
	Close() error
}

const subscriberBuffer = 8
