package models

import "time"

// JoinRequestStatus lifecycle: PENDING -> {ACCEPTED, REJECTED, COMPLETED}.
// All three outcomes are terminal.
type JoinRequestStatus string

const (
	RequestPending   JoinRequestStatus = "PENDING"
	RequestAccepted  JoinRequestStatus = "ACCEPTED"
	RequestRejected  JoinRequestStatus = "REJECTED"
	RequestCompleted JoinRequestStatus = "COMPLETED"
)

// JoinRequest is a request to join a team, raised either by a registered
// user (UserID set) or by an unregistered candidate captured as a snapshot.
type JoinRequest struct {
	ID     int  `json:"id" db:"id"`
	TeamID int  `json:"team_id" db:"team_id"`
	UserID *int `json:"user_id,omitempty" db:"user_id"`

	CandidateName    *string `json:"candidate_name,omitempty" db:"candidate_name"`
	CandidateEmail   *string `json:"candidate_email,omitempty" db:"candidate_email"`
	CandidatePhone   *string `json:"candidate_phone,omitempty" db:"candidate_phone"`
	CandidateRegNo   *string `json:"candidate_reg_no,omitempty" db:"candidate_reg_no"`
	CandidateCollege *string `json:"candidate_college,omitempty" db:"candidate_college"`

	Status     JoinRequestStatus `json:"status" db:"status"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`

	User *User `json:"user,omitempty" db:"-"`
	Team *Team `json:"team,omitempty" db:"-"`
}

// RequesterEmail returns the address join decisions should be sent to,
// regardless of whether the requester is registered.
func (jr *JoinRequest) RequesterEmail() string {
	if jr.User != nil && jr.User.Email != "" {
		return jr.User.Email
	}
	if jr.CandidateEmail != nil {
		return *jr.CandidateEmail
	}
	return ""
}
