package model

import "time"

// Response is the envelope used by the non-command HTTP endpoints and by
// transport-level errors. Command results are written bare so existing
// clients keep working.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Error     *APIError `json:"error"`
}
