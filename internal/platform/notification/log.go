package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them. It stands
// in for a provider that is not configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().
		Str("channel", string(ChannelEmail)).
		Str("to", to).
		Str("subject", subject).
		Int("body_len", len(body)).
		Msg("email not delivered, no SMTP configured")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().
		Str("channel", string(ChannelSMS)).
		Str("to", to).
		Int("body_len", len(body)).
		Msg("sms not delivered, no provider configured")
	return nil
}
