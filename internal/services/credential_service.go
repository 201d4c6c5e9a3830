package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"authportal/internal/models"
	"authportal/internal/repositories"
)

// CredentialService drives the account lifecycle: registration, login,
// email verification and password reset.
type CredentialService interface {
	Register(ctx context.Context, email, password string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*models.Account, error)
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)

	// CompensateRegistration removes a primary record whose replica write failed.
	CompensateRegistration(ctx context.Context, account *models.Account) error
}

type CredentialOptions struct {
	NotifyOnLogin bool
	Now           func() time.Time
}

type credentialService struct {
	repo          repositories.AccountRepository
	verifier      VerificationService
	replica       ReplicaSynchronizer
	emails        EmailService
	auth          AuthService
	notifyOnLogin bool
	now           func() time.Time
}

func NewCredentialService(
	repo repositories.AccountRepository,
	verifier VerificationService,
	replica ReplicaSynchronizer,
	emails EmailService,
	auth AuthService,
	opts CredentialOptions,
) CredentialService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &credentialService{
		repo:          repo,
		verifier:      verifier,
		replica:       replica,
		emails:        emails,
		auth:          auth,
		notifyOnLogin: opts.NotifyOnLogin,
		now:           opts.Now,
	}
}

func (s *credentialService) Register(ctx context.Context, email, password string) (*models.Account, error) {
	key := models.NormalizeIdentity(email)
	if key == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	if _, err := s.repo.FindByIdentity(ctx, key); err == nil {
		slog.InfoContext(ctx, "[auth][register] identity already present", "email", key)
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(email),
		IdentityKey:  key,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "[auth][register] primary record created", "account_id", account.ID)

	// primary write committed: replica write or compensation must run to the end
	ctx = context.WithoutCancel(ctx)

	if err := s.replica.OnCreate(ctx, account); err != nil {
		slog.ErrorContext(ctx, "[auth][register] replica sync failed, compensating", "account_id", account.ID, "error", err)
		if cerr := s.CompensateRegistration(ctx, account); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "[auth][register] success", "account_id", account.ID)
	return account, nil
}

func (s *credentialService) CompensateRegistration(ctx context.Context, account *models.Account) error {
	err := s.repo.Delete(ctx, account.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// орфан в основном хранилище: осознанное ограничение, оставляем след в логе
		slog.ErrorContext(ctx, "[auth][compensate] delete failed, orphan left in primary store",
			"account_id", account.ID, "error", err)
		return fmt.Errorf("compensate registration %s: %w", account.ID, err)
	}
	slog.WarnContext(ctx, "[auth][compensate] primary record removed", "account_id", account.ID)
	return nil
}

func (s *credentialService) Login(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.repo.FindByIdentity(ctx, email)
	if err != nil {
		return nil, err
	}

	ok, err := s.auth.ComparePassword(password, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.InfoContext(ctx, "[auth][login] password mismatch", "account_id", account.ID)
		return nil, ErrInvalidCredentials
	}

	if s.notifyOnLogin {
		subject, body := loginNoticeMessage()
		if err := s.emails.Send(ctx, account.Email, subject, body); err != nil {
			slog.WarnContext(ctx, "[auth][login] login notice not delivered", "account_id", account.ID, "error", err)
		}
	}
	return account, nil
}

func (s *credentialService) SendOTP(ctx context.Context, email string) error {
	return s.issueAndNotify(ctx, email, models.PurposeEmailVerification, otpMessage)
}

func (s *credentialService) ForgotPassword(ctx context.Context, email string) error {
	return s.issueAndNotify(ctx, email, models.PurposePasswordReset, resetMessage)
}

// issueAndNotify leaves the artifact in place when delivery fails so the caller may resend.
func (s *credentialService) issueAndNotify(
	ctx context.Context,
	email string,
	purpose models.Purpose,
	compose func(code string, ttl time.Duration) (string, string),
) error {
	account, err := s.repo.FindByIdentity(ctx, email)
	if err != nil {
		return err
	}

	v, err := s.verifier.Issue(ctx, account, purpose)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "[auth][issue] code stored", "account_id", account.ID, "purpose", purpose, "expires_at", v.ExpiresAt)

	subject, body := compose(v.Code, s.verifier.TTL(purpose))
	if err := s.emails.Send(ctx, account.Email, subject, body); err != nil {
		slog.ErrorContext(ctx, "[auth][issue] delivery failed", "account_id", account.ID, "purpose", purpose, "error", err)
		return fmt.Errorf("%w: %w", ErrNotificationFailure, err)
	}
	return nil
}

func (s *credentialService) VerifyOTP(ctx context.Context, email, code string) error {
	account, err := s.repo.FindByIdentity(ctx, email)
	if err != nil {
		return err
	}

	var verifiedAt time.Time
	err = s.verifier.Redeem(ctx, account, models.PurposeEmailVerification, code,
		func(ctx context.Context, now time.Time) (bool, error) {
			verifiedAt = now
			return s.repo.ConsumeAndMarkVerified(ctx, account.ID, code, now)
		})
	if err != nil {
		slog.InfoContext(ctx, "[auth][verify-otp] rejected", "account_id", account.ID, "reason", err)
		return err
	}
	account.EmailVerifiedAt = &verifiedAt
	return nil
}

func (s *credentialService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	account, err := s.repo.FindByIdentity(ctx, email)
	if err != nil {
		return err
	}

	// hash before redeeming so a hashing error cannot burn the code
	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.verifier.Redeem(ctx, account, models.PurposePasswordReset, code,
		func(ctx context.Context, now time.Time) (bool, error) {
			return s.repo.ResetCredential(ctx, account.ID, code, hash, now)
		})
	if err != nil {
		slog.InfoContext(ctx, "[auth][reset-password] rejected", "account_id", account.ID, "reason", err)
		return err
	}
	account.PasswordHash = hash

	ctx = context.WithoutCancel(ctx)

	if err := s.replica.OnCredentialChange(ctx, account, hash); err != nil {
		// пароль уже сменён в основном хранилище, реплика отстаёт
		slog.ErrorContext(ctx, "[auth][reset-password] password changed, replica stale",
			"account_id", account.ID, "reconcile", true, "error", err)
		return err
	}

	slog.InfoContext(ctx, "[auth][reset-password] success", "account_id", account.ID)
	return nil
}

func (s *credentialService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return s.repo.FindByID(ctx, id)
}
