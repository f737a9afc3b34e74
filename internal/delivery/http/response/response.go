package response

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
}

// ScraperRunResponse is a DTO for one source's run, mirroring entity.ScraperRun.
type ScraperRunResponse struct {
	ID        int64      `json:"id"`
	Source    string     `json:"source"`
	Status    string     `json:"status"` // "initialized", "running", "completed", "failed"
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	DurationS *float64   `json:"duration_s,omitempty"`
	TotalSeen int        `json:"total_seen"`
	TotalNew  int        `json:"total_new"`
	Error     string     `json:"error,omitempty"`
	Note      string     `json:"note,omitempty"`
}

type MainRunResponse struct {
	ID        int64                `json:"id"`
	Status    string               `json:"status"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   *time.Time           `json:"ended_at,omitempty"`
	DurationS *float64             `json:"duration_s,omitempty"`
	TotalSeen int                  `json:"total_seen"`
	TotalNew  int                  `json:"total_new"`
	Error     string               `json:"error,omitempty"`
	Scrapers  []ScraperRunResponse `json:"scrapers"`
}
