package common

// EmailSender is the outbound mail contract. The worker injects a real
// provider in production; tests use the in-memory capture below.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is one captured message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail records sent messages for assertions.
type InMemoryEmail struct {
	Outbox []Email
}

func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender discards messages. Used when no mail provider is configured.
type NopEmailSender struct{}

func (NopEmailSender) Send(string, string, string) error { return nil }
