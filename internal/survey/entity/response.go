package entity

import (
	"encoding/json"
	"time"
)

// Response statuses. A record is created as draft or directly as submitted;
// draft -> submitted is the only transition and submitted is terminal.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

// Response is the stored answer set for one user's attempt at one study.
// At most one row exists per (user_id, study_id); the table enforces it.
type Response struct {
	ResponseID    int64           `db:"response_id" json:"responseId"`
	StudyID       int64           `db:"study_id" json:"studyId"`
	UserID        int64           `db:"user_id" json:"userId"`
	ResponseData  json.RawMessage `db:"response_data" json:"responseData"`
	Status        string          `db:"status" json:"status"`
	SubmittedAt   *time.Time      `db:"submitted_at" json:"submittedAt"`
	LastUpdatedAt time.Time       `db:"last_updated_at" json:"lastUpdatedAt"`
}

// Submitted reports whether the record reached its terminal state.
func (r *Response) Submitted() bool { return r.Status == StatusSubmitted }
