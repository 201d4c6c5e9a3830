package services

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AuthService hashes and checks passwords. The salt lives inside the digest.
type AuthService interface {
	HashPassword(plain string) (string, error)
	ComparePassword(plain, hash string) (bool, error)
}

type authService struct {
	cost int
}

func NewAuthService(cost int) AuthService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &authService{cost: cost}
}

func (s *authService) HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s *authService) ComparePassword(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}
