package dto

import "time"

// ReportResponse points at a rendered report behind a signed token.
type ReportResponse struct {
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Token       string    `json:"token"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ImportResult reports how many course requests an upload added.
type ImportResult struct {
	ScheduleYear int `json:"scheduleYear"`
	Imported     int `json:"imported"`
}
