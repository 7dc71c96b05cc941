// Package notification delivers rendered messages over e-mail and SMS.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template is a message with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine renders registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

const TemplateAppointmentReminder = "appointment-reminder"

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.Register(Template{
		ID:      TemplateAppointmentReminder,
		Subject: "Appointment reminder: {{date}} at {{time}}",
		Body: "Dear {{patient_name}},\n\n{{message}}\n\n" +
			"Doctor: {{doctor_name}}\nWhen: {{date}} at {{time}}\n",
	})
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template. Unknown placeholders are left in place.
func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}

// Message is one rendered notification addressed to a single recipient.
type Message struct {
	Channel   Channel
	Recipient string
	Subject   string
	Body      string
}

var ErrNoRecipient = errors.New("notification has no recipient")

// Dispatcher routes messages to the sender for their channel.
type Dispatcher struct {
	email EmailSender
	sms   SMSSender
}

func NewDispatcher(email EmailSender, sms SMSSender) *Dispatcher {
	return &Dispatcher{email: email, sms: sms}
}

func (d *Dispatcher) Send(ctx context.Context, m Message) error {
	if strings.TrimSpace(m.Recipient) == "" {
		return ErrNoRecipient
	}
	switch m.Channel {
	case ChannelEmail:
		if d.email == nil {
			return errors.New("no email sender configured")
		}
		return d.email.SendEmail(ctx, m.Recipient, m.Subject, m.Body)
	case ChannelSMS:
		if d.sms == nil {
			return errors.New("no sms sender configured")
		}
		return d.sms.SendSMS(ctx, m.Recipient, m.Body)
	default:
		return fmt.Errorf("unsupported channel: %s", m.Channel)
	}
}
