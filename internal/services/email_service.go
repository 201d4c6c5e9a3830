package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"
)

// EmailService delivers notifications to an account's email address.
type EmailService interface {
	Send(ctx context.Context, to, subject, body string) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
	dryRun bool
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string, dryRun bool) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
		dryRun: dryRun,
	}
}

func (s *emailService) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// dry-run: ничего не отправляем, только пишем в лог (без тела письма, там код)
	if s.dryRun {
		slog.InfoContext(ctx, "[email][dry-run] message suppressed", "to", to, "subject", subject)
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func otpMessage(code string, ttl time.Duration) (subject, body string) {
	return "Your OTP for Verification",
		fmt.Sprintf("Your OTP is: %s\nIt expires in %d minutes.", code, int(ttl.Minutes()))
}

func resetMessage(code string, ttl time.Duration) (subject, body string) {
	return "Password Reset Request",
		fmt.Sprintf("Your password reset OTP is: %s\nIt expires in %d minutes.\nIf you did not request this change, you can ignore this email.", code, int(ttl.Minutes()))
}

func loginNoticeMessage() (subject, body string) {
	return "Login Successful", "You have successfully logged in."
}
