package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPSender sends plain-text e-mail through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	dial func() (gomail.SendCloser, error)
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPSender{cfg: cfg, dial: d.Dial}
}

func (s *SMTPSender) buildMessage(to, subject, body string) (*gomail.Message, error) {
	from := strings.TrimSpace(s.cfg.From)
	if from == "" {
		return nil, fmt.Errorf("smtp: from address is required")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, ErrNoRecipient
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return msg, nil
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	msg, err := s.buildMessage(to, subject, body)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		sc, err := s.dial()
		if err != nil {
			done <- fmt.Errorf("smtp dial: %w", err)
			return
		}
		defer sc.Close()
		done <- gomail.Send(sc, msg)
	}()

	wait := s.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && left < wait {
			wait = left
		}
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}
