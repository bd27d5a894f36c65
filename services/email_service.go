package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/config"
)

// EmailService delivers the engine's notifications over SMTP. It implements
// Notifier; callers must dispatch it off the request path (a failed send
// never rolls back a state transition).
type EmailService struct {
	cfg *config.Config
}

func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{cfg: cfg}
}

var emailSubjects = map[TemplateKind]string{
	TemplateWelcome:         "Welcome to Concurrence 2k26!",
	TemplatePaymentReceived: "Payment received — verification in progress",
	TemplatePaymentVerified: "Payment verified — your ticket is ready",
	TemplatePaymentRejected: "Payment could not be verified",
	TemplateJoinAccepted:    "Your squad join request was accepted",
	TemplateJoinRejected:    "Your squad join request was declined",
}

var emailTemplates = map[TemplateKind]*template.Template{
	TemplateWelcome: template.Must(template.New("welcome").Parse(`
		<h2>Welcome, {{.Name}}!</h2>
		<p>Your registration for Concurrence 2k26 is in. Your registration number is <b>{{.RegNo}}</b>.</p>
		<p>Head to your dashboard to create or join a squad and complete your payment.</p>`)),
	TemplatePaymentReceived: template.Must(template.New("payment_received").Parse(`
		<h2>We got your payment proof</h2>
		<p>Transaction <b>{{.TransactionID}}</b> is queued for verification. You will hear from us once a volunteer has checked it.</p>`)),
	TemplatePaymentVerified: template.Must(template.New("payment_verified").Parse(`
		<h2>You're in, {{.Name}}!</h2>
		<p>Your payment has been verified. Show this ticket at the venue:</p>
		<p><img src="{{.TicketURL}}" alt="entry ticket QR"/></p>
		{{if .CommunityLink}}<p>Join the participant community: <a href="{{.CommunityLink}}">{{.CommunityLink}}</a></p>{{end}}`)),
	TemplatePaymentRejected: template.Must(template.New("payment_rejected").Parse(`
		<h2>Payment verification failed</h2>
		<p>We could not verify the payment submitted for {{.Name}}. If you believe this is a mistake, contact the organizing team at the registration desk.</p>`)),
	TemplateJoinAccepted: template.Must(template.New("join_accepted").Parse(`
		<h2>Request accepted</h2>
		<p>The leader of <b>{{.TeamName}}</b> accepted your request. You are now part of the squad.</p>`)),
	TemplateJoinRejected: template.Must(template.New("join_rejected").Parse(`
		<h2>Request declined</h2>
		<p>Your request to join <b>{{.TeamName}}</b> was declined. You can request another squad or register individually.</p>`)),
}

// Notify renders the template for kind and sends it to email.
func (s *EmailService) Notify(email string, kind TemplateKind, args map[string]interface{}) error {
	tmpl, ok := emailTemplates[kind]
	if !ok {
		return fmt.Errorf("unknown email template kind: %s", kind)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, args); err != nil {
		return fmt.Errorf("failed to render %s template: %w", kind, err)
	}

	return s.sendEmail([]string{email}, emailSubjects[kind], body.String())
}

func (s *EmailService) sendEmail(to []string, subject, body string) error {
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)

	msg := []byte("To: " + to[0] + "\r\n" +
		"From: " + s.cfg.SMTPFrom + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: s.cfg.SMTPHost,
	}

	var client *smtp.Client
	if s.cfg.SMTPPort == 465 {
		// Implicit TLS
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial: %w", err)
		}
		defer conn.Close()
		client, err = smtp.NewClient(conn, s.cfg.SMTPHost)
		if err != nil {
			return fmt.Errorf("smtp client: %w", err)
		}
	} else {
		// STARTTLS (usually 587)
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(s.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return nil
}
