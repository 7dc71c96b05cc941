package notification

import (
	"context"
	"errors"
	"sync"
)

type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender records calls. Set FailFor to make sends to that address fail.
type MockEmailSender struct {
	mu      sync.Mutex
	calls   []EmailCall
	FailFor string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.FailFor != "" && m.FailFor == to {
		return errors.New("mailbox unavailable")
	}
	return nil
}

func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

type SMSCall struct {
	To   string
	Body string
}

type MockSMSSender struct {
	mu      sync.Mutex
	calls   []SMSCall
	FailFor string
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.FailFor != "" && m.FailFor == to {
		return errors.New("carrier rejected message")
	}
	return nil
}

func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
