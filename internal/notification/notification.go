// Package notification delivers patient notifications relayed from the outbox.
package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/geoclinic/clinic-api/internal/model"
	"github.com/geoclinic/clinic-api/pkg/messaging"
)

// Sender delivers one notification over one channel.
type Sender interface {
	Send(ctx context.Context, n model.PatientNotification) error
}

// LogSender writes notifications to the worker log. It is always enabled so
// every delivery leaves a trace even without SMTP or Redis.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n model.PatientNotification) error {
	s.logger.Info("appointment confirmed",
		zap.Int64("patient_id", n.PatientID),
		zap.Int64("appointment_id", n.AppointmentID),
		zap.Time("scheduled_at", n.ScheduledAt),
	)
	return nil
}

type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender sends the confirmation e-mail over SMTP.
type EmailSender struct {
	dialer mailer
	from   string
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	return &EmailSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *EmailSender) Send(ctx context.Context, n model.PatientNotification) error {
	if n.Email == "" {
		return fmt.Errorf("patient %d has no email address", n.PatientID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.Email)
	m.SetHeader("Subject", "Your appointment is confirmed")
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\nYour appointment #%d is confirmed for %s.\n",
		n.Username, n.AppointmentID, n.ScheduledAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
	))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// BrokerSender fans the notification out to pub/sub subscribers.
type BrokerSender struct {
	publisher messaging.Publisher
	channel   string
}

func NewBrokerSender(publisher messaging.Publisher, channel string) *BrokerSender {
	return &BrokerSender{publisher: publisher, channel: channel}
}

func (s *BrokerSender) Send(ctx context.Context, n model.PatientNotification) error {
	msg, err := messaging.NewMessage(model.EventPatientNotification, n)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, s.channel, msg)
}

// Multi tries every sender and joins their errors.
type Multi []Sender

func (m Multi) Send(ctx context.Context, n model.PatientNotification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
