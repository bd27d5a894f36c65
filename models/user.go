package models

import "time"

// UserRole is the user's role inside their squad, not an access-control role.
type UserRole string

const (
	RoleLeader UserRole = "LEADER"
	RoleMember UserRole = "MEMBER"
)

// UserStatus tracks a participant through the payment verification pipeline.
// UNPAID -> {PENDING, VERIFYING} -> {APPROVED, REJECTED}.
type UserStatus string

const (
	StatusUnpaid    UserStatus = "UNPAID"
	StatusPending   UserStatus = "PENDING"
	StatusVerifying UserStatus = "VERIFYING"
	StatusApproved  UserStatus = "APPROVED"
	StatusRejected  UserStatus = "REJECTED"
)

// Terminal reports whether no further status transition is permitted.
func (s UserStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type User struct {
	ID            int        `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	RegNo         string     `json:"reg_no" db:"reg_no"`
	Email         string     `json:"email" db:"email"`
	Phone         string     `json:"phone" db:"phone"`
	College       string     `json:"college" db:"college"`
	Branch        string     `json:"branch" db:"branch"`
	Year          int        `json:"year" db:"year"`
	TeamID        *int       `json:"team_id,omitempty" db:"team_id"`
	Role          UserRole   `json:"role" db:"role"`
	Status        UserStatus `json:"status" db:"status"`
	TransactionID *string    `json:"transaction_id,omitempty" db:"transaction_id"`
	ProofURL      *string    `json:"proof_url,omitempty" db:"proof_url"`
	ChannelID     *int       `json:"channel_id,omitempty" db:"channel_id"`
	Attended      bool       `json:"attended" db:"attended"`
	PasswordHash  *string    `json:"-" db:"password_hash"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`

	Team *Team `json:"team,omitempty" db:"-"`
}
