package events

import "time"

// Type labels a domain event emitted by an engine mutation. Dashboards
// subscribe to the stream instead of re-polling table snapshots.
type Type string

const (
	TypeTeamCreated      Type = "TEAM_CREATED"
	TypeTeamUpdated      Type = "TEAM_UPDATED"
	TypeTeamDisbanded    Type = "TEAM_DISBANDED"
	TypeMemberAdded      Type = "MEMBER_ADDED"
	TypeMemberRemoved    Type = "MEMBER_REMOVED"
	TypeRequestCreated   Type = "REQUEST_CREATED"
	TypeRequestResolved  Type = "REQUEST_RESOLVED"
	TypePaymentSubmitted Type = "PAYMENT_SUBMITTED"
	TypeStatusChanged    Type = "STATUS_CHANGED"
)

type Event struct {
	Type       Type        `json:"type"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher is the seam services emit through. Publishing is fire-and-forget:
// a slow or absent subscriber never blocks or fails an engine operation.
type Publisher interface {
	Publish(eventType Type, payload interface{})
}

// NopPublisher discards events. Used in tests and in tools that run the
// engine without a dashboard attached.
type NopPublisher struct{}

func (NopPublisher) Publish(Type, interface{}) {}
