package model

import "time"

const (
	SessionStatusActive    = "ACTIVE"
	SessionStatusCompleted = "COMPLETED"
)

// Session is one seat allocation on a tool. Sessions are append-only:
// they are created ACTIVE and transition to COMPLETED exactly once,
// never the reverse and never deleted.
type Session struct {
	ID              string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	ToolID          string     `json:"tool_id" bson:"tool_id" validate:"required,mongodb"`
	Holder          string     `json:"holder" bson:"holder" validate:"required,email"`
	Status          string     `json:"status" bson:"status" validate:"required,oneof=ACTIVE COMPLETED"`
	StartTime       time.Time  `json:"start_time" bson:"start_time" validate:"required"`
	ExpectedEndTime time.Time  `json:"expected_end_time" bson:"expected_end_time" validate:"required,gtfield=StartTime"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}
