package services

import (
	"context"
	"fmt"
	"time"

	"authportal/internal/models"
	"authportal/internal/replica"
)

const defaultReplicaTimeout = 5 * time.Second

// ReplicaSynchronizer mirrors credential changes into the secondary store.
// Every failure, timeouts included, is reported as ErrSyncFailure.
type ReplicaSynchronizer interface {
	OnCreate(ctx context.Context, account *models.Account) error
	OnCredentialChange(ctx context.Context, account *models.Account, newHash string) error
}

type replicaSynchronizer struct {
	client  replica.Client
	timeout time.Duration
}

func NewReplicaSynchronizer(client replica.Client, timeout time.Duration) ReplicaSynchronizer {
	if timeout <= 0 {
		timeout = defaultReplicaTimeout
	}
	return &replicaSynchronizer{client: client, timeout: timeout}
}

func (s *replicaSynchronizer) OnCreate(ctx context.Context, account *models.Account) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.client.Put(ctx, account.ID, replica.Fields{
		"email":    account.Email,
		"password": account.PasswordHash,
	})
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrSyncFailure, account.ID, err)
	}
	return nil
}

func (s *replicaSynchronizer) OnCredentialChange(ctx context.Context, account *models.Account, newHash string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.client.Patch(ctx, account.ID, replica.Fields{
		"password":  newHash,
		"otp":       nil,
		"otpExpiry": nil,
	})
	if err != nil {
		return fmt.Errorf("%w: credential change %s: %w", ErrSyncFailure, account.ID, err)
	}
	return nil
}
