// Package notify publishes workflow outcomes so other automation can react
// to a finished reservation, usage upload or removal.
package notify

import (
	"context"
	"time"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event describes the outcome of one workflow run.
type Event struct {
	RunID      string    `json:"run_id"`
	Workflow   string    `json:"workflow"`
	PID        string    `json:"pid"`
	Serial     string    `json:"serial"`
	Hostname   string    `json:"hostname"`
	Status     string    `json:"status"`
	PollID     string    `json:"poll_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	Artifact   string    `json:"artifact,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() {}
