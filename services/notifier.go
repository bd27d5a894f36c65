package services

// TemplateKind names a notification template. The engine treats delivery as
// an external collaborator: every Notify call is fire-and-forget relative to
// the state transition that triggered it.
type TemplateKind string

const (
	TemplateWelcome         TemplateKind = "WELCOME"
	TemplatePaymentReceived TemplateKind = "PAYMENT_RECEIVED"
	TemplatePaymentVerified TemplateKind = "PAYMENT_VERIFIED"
	TemplatePaymentRejected TemplateKind = "PAYMENT_REJECTED"
	TemplateJoinAccepted    TemplateKind = "JOIN_ACCEPTED"
	TemplateJoinRejected    TemplateKind = "JOIN_REJECTED"
)

type Notifier interface {
	Notify(email string, kind TemplateKind, args map[string]interface{}) error
}
