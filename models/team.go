package models

import "time"

// PaymentMode determines who pays for a squad: every member on their own,
// or the leader once for the whole roster.
type PaymentMode string

const (
	PaymentIndividual PaymentMode = "INDIVIDUAL"
	PaymentBulk       PaymentMode = "BULK"
)

const DefaultMaxMembers = 5

type Team struct {
	ID          int         `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	JoinCode    string      `json:"join_code" db:"join_code"`
	PaymentMode PaymentMode `json:"payment_mode" db:"payment_mode"`
	MaxMembers  int         `json:"max_members" db:"max_members"`
	// LeaderID is a display-only back-reference. Cascades always traverse
	// users.team_id, never this pointer, so a stale value is harmless.
	LeaderID  *int      `json:"leader_id,omitempty" db:"leader_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Members []User `json:"members,omitempty" db:"-"`
}
