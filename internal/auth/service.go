package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/shared"
)

// totpIssuer labels provisioned keys in authenticator apps.
const totpIssuer = "Darklock Console"

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. Every failure path
// returns the same error so responses do not reveal which part failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Credentials, error) {
	creds, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return Credentials{}, shared.ErrInvalidCredentials
	}
	if !creds.Operator.IsActive {
		return Credentials{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return Credentials{}, shared.ErrInvalidCredentials
	}
	return creds, nil
}

// VerifyTOTP checks the second factor for an operator with TOTP enabled.
func (s *Service) VerifyTOTP(creds Credentials, code string) error {
	if !creds.TOTPEnabled {
		return nil
	}
	if !totp.Validate(code, creds.TOTPSecret) {
		return shared.ErrInvalidCredentials
	}
	return nil
}

// BeginTOTPEnrollment generates a fresh secret for the operator and stores
// it disabled. The returned otpauth URL is shown once for QR provisioning.
func (s *Service) BeginTOTPEnrollment(ctx context.Context, op identity.Operator) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: totpIssuer, AccountName: op.Email})
	if err != nil {
		return "", "", fmt.Errorf("auth: generate totp key: %w", err)
	}
	if err := s.repo.SetTOTPSecret(ctx, op.ID, key.Secret(), false); err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// ConfirmTOTPEnrollment activates the pending secret once the operator
// proves they can produce a valid code.
func (s *Service) ConfirmTOTPEnrollment(ctx context.Context, op identity.Operator, code string) error {
	creds, err := s.repo.FindByEmail(ctx, op.Email)
	if err != nil {
		return err
	}
	if creds.TOTPSecret == "" {
		return fmt.Errorf("auth: no pending enrollment: %w", shared.ErrInvalidInput)
	}
	if !totp.Validate(code, creds.TOTPSecret) {
		return shared.ErrInvalidCredentials
	}
	return s.repo.SetTOTPSecret(ctx, op.ID, creds.TOTPSecret, true)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, operatorID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, operatorID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
