package models

import "time"

// ActionLog is an append-only audit entry for staff actions. UserID is
// nullable because rejected users are purged; UserLabel keeps a readable
// trace of who the action applied to after the row is gone.
type ActionLog struct {
	ID        int       `json:"id" db:"id"`
	AdminID   int       `json:"admin_id" db:"admin_id"`
	UserID    *int      `json:"user_id,omitempty" db:"user_id"`
	UserLabel string    `json:"user_label" db:"user_label"`
	Action    string    `json:"action" db:"action"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
