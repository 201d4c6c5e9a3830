package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"authportal/internal/models"
	"authportal/internal/repositories"
	"authportal/internal/utils"
)

const (
	defaultOTPTTL   = 5 * time.Minute
	defaultResetTTL = 10 * time.Minute
)

// VerificationService issues and checks single-use codes stored on the account.
type VerificationService interface {
	Issue(ctx context.Context, account *models.Account, purpose models.Purpose) (*models.VerificationArtifact, error)
	Verify(ctx context.Context, account *models.Account, purpose models.Purpose, code string) error
	Redeem(ctx context.Context, account *models.Account, purpose models.Purpose, code string, apply Redemption) error
	TTL(purpose models.Purpose) time.Duration
}

// Redemption consumes the artifact together with whatever the code authorizes, in one store
// write. It returns false when the stored artifact no longer matches.
type Redemption func(ctx context.Context, now time.Time) (bool, error)

// VerificationConfig zero values fall back to defaults.
type VerificationConfig struct {
	OTPTTL   time.Duration
	ResetTTL time.Duration
	Now      func() time.Time
	NewCode  func() (string, error)
}

type verificationService struct {
	repo    repositories.AccountRepository
	ttls    map[models.Purpose]time.Duration
	now     func() time.Time
	newCode func() (string, error)
}

func NewVerificationService(repo repositories.AccountRepository, cfg VerificationConfig) VerificationService {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = defaultOTPTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = defaultResetTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewCode == nil {
		cfg.NewCode = utils.GenerateOTP
	}
	return &verificationService{
		repo: repo,
		ttls: map[models.Purpose]time.Duration{
			models.PurposeEmailVerification: cfg.OTPTTL,
			models.PurposePasswordReset:     cfg.ResetTTL,
		},
		now:     cfg.Now,
		newCode: cfg.NewCode,
	}
}

func (s *verificationService) TTL(purpose models.Purpose) time.Duration {
	return s.ttls[purpose]
}

func (s *verificationService) Issue(ctx context.Context, account *models.Account, purpose models.Purpose) (*models.VerificationArtifact, error) {
	if !purpose.Valid() {
		return nil, fmt.Errorf("unknown verification purpose %q", purpose)
	}
	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	issuedAt := s.now()
	v := &models.VerificationArtifact{
		Code:      code,
		Purpose:   purpose,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttls[purpose]),
	}
	if err := s.repo.SetVerification(ctx, account.ID, v); err != nil {
		return nil, err
	}
	account.Verification = v
	return v, nil
}

// Verify consumes a matching artifact and changes nothing else.
func (s *verificationService) Verify(ctx context.Context, account *models.Account, purpose models.Purpose, code string) error {
	return s.Redeem(ctx, account, purpose, code, func(ctx context.Context, now time.Time) (bool, error) {
		return s.repo.ConsumeVerification(ctx, account.ID, purpose, code, now)
	})
}

// Redeem reports ErrExpired for an expired artifact whether or not the code matched,
// so callers cannot distinguish a wrong code from a stale one by outcome.
// When apply fails the artifact stays in place.
func (s *verificationService) Redeem(ctx context.Context, account *models.Account, purpose models.Purpose, code string, apply Redemption) error {
	v := account.Verification
	if v == nil || v.Purpose != purpose {
		return ErrInvalidCode
	}

	matched := subtle.ConstantTimeCompare([]byte(v.Code), []byte(code)) == 1

	now := s.now()
	if v.Expired(now) {
		// clear only the artifact we read; a newer one issued meanwhile stays
		if err := s.repo.ClearVerification(ctx, account.ID, v.Purpose, v.Code, now); err != nil {
			slog.ErrorContext(ctx, "[verification][verify] clear expired failed", "account_id", account.ID, "error", err)
		}
		account.Verification = nil
		return ErrExpired
	}
	if !matched {
		return ErrInvalidCode
	}

	ok, err := apply(ctx, now)
	if err != nil {
		return err
	}
	if !ok {
		// consumed, replaced or expired under a concurrent request
		if v.Expired(s.now()) {
			return ErrExpired
		}
		return ErrInvalidCode
	}
	account.Verification = nil
	return nil
}
