package services

import (
	"context"
	"time"

	"github.com/fatali-fataliyev/budget_watch/internal/budget"
)

const (
	RESULT_SENT     = "sent"
	RESULT_NO_ALERT = "no_alert"
	RESULT_NO_DATA  = "no_data"
	RESULT_FALLBACK = "fallback"
	RESULT_ERROR    = "error"
)

// UserResult records what a batch run did for one user.
type UserResult struct {
	UserID    string           `json:"user_id"`
	UserName  string           `json:"username"`
	Result    string           `json:"result"`
	AlertType budget.AlertType `json:"alert_type,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type BatchSummary struct {
	Job       string        `json:"job"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Checked   int           `json:"checked"`
	Sent      int           `json:"sent"`
	Warnings  int           `json:"warnings"`
	Criticals int           `json:"criticals"`
	Skipped   int           `json:"skipped"`
	Fallbacks int           `json:"fallbacks"`
	Errors    int           `json:"errors"`
	Details   []UserResult  `json:"details"`
}

// AlertResult is the outcome of checking one user's budget.
type AlertResult struct {
	Status    budget.BudgetStatus `json:"status"`
	Sent      bool                `json:"sent"`
	AlertType budget.AlertType    `json:"alert_type,omitempty"`
}

// Sleeper waits between deliveries. It returns early with ctx.Err() on cancellation.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
