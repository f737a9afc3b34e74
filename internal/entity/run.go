package entity

import "time"

type RunStatus string

const (
	RunInitialized RunStatus = "initialized"
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
)

// CanTransition reports whether from -> to is an edge of
// initialized -> running -> {completed | failed}.
func (s RunStatus) CanTransition(to RunStatus) bool {
	switch s {
	case RunInitialized:
		return to == RunRunning
	case RunRunning:
		return to == RunCompleted || to == RunFailed
	}
	return false
}

func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// MainRun mirrors the `main_runs` table: one row per orchestrator invocation.
type MainRun struct {
	ID        int64
	Status    RunStatus
	StartedAt time.Time
	EndedAt   *time.Time
	DurationS *float64
	TotalSeen int
	TotalNew  int
	Error     string
}

// ScraperRun mirrors the `scraper_runs` table.
type ScraperRun struct {
	ID        int64
	MainRunID int64
	Source    Source
	Status    RunStatus
	StartedAt time.Time
	EndedAt   *time.Time
	DurationS *float64
	TotalSeen int
	TotalNew  int
	Error     string
	Note      string
}
