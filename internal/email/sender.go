package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para el envío de correos transaccionales.
type Sender interface {
	SendOTPEmail(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
	SendPasswordResetEmail(ctx context.Context, toEmail string, resetURL string) error
}

type disabledSender struct {
	reason string
}

// NewDisabledSender devuelve un Sender que rechaza todo envío. Se usa cuando
// SMTP no está configurado.
func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendOTPEmail(_ context.Context, _ string, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendPasswordResetEmail(_ context.Context, _ string, _ string) error {
	return s.err()
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
