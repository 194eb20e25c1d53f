package study

import (
	"encoding/json"
	"time"
)

// Study is a row of sp_studies. Definition is the opaque form schema authored
// by the study builder; this service stores and serves it without inspecting it.
type Study struct {
	StudyID     int64           `db:"study_id" json:"studyId"`
	StudyTitle  string          `db:"study_title" json:"studyTitle"`
	StudyNumber string          `db:"study_number" json:"studyNumber"`
	Status      string          `db:"status" json:"status"`
	Definition  json.RawMessage `db:"definition" json:"definition,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   *time.Time      `db:"updated_at" json:"updatedAt,omitempty"`
}
