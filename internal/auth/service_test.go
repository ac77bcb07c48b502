package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/shared"
	_ "github.com/darklock-sec/darklock-console/testing"
)

type stubAuthRepo struct {
	creds map[string]Credentials

	sessions map[string]int64
	secrets  map[int64]string
	enabled  map[int64]bool
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{
		creds:    make(map[string]Credentials),
		sessions: make(map[string]int64),
		secrets:  make(map[int64]string),
		enabled:  make(map[int64]bool),
	}
}

func (s *stubAuthRepo) FindByEmail(ctx context.Context, email string) (Credentials, error) {
	creds, ok := s.creds[email]
	if !ok {
		return Credentials{}, shared.ErrNotFound
	}
	if secret, has := s.secrets[creds.Operator.ID]; has {
		creds.TOTPSecret = secret
		creds.TOTPEnabled = s.enabled[creds.Operator.ID]
	}
	return creds, nil
}

func (s *stubAuthRepo) CreateSession(ctx context.Context, id string, operatorID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = operatorID
	return nil
}

func (s *stubAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubAuthRepo) SetTOTPSecret(ctx context.Context, operatorID int64, secret string, enabled bool) error {
	s.secrets[operatorID] = secret
	s.enabled[operatorID] = enabled
	return nil
}

func seedOperator(t *testing.T, repo *stubAuthRepo, email, password string, active bool) Credentials {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	creds := Credentials{
		Operator:     identity.Operator{ID: int64(len(repo.creds) + 1), Email: email, Role: identity.RoleAdmin, IsActive: active},
		PasswordHash: string(hash),
	}
	repo.creds[email] = creds
	return creds
}

func TestAuthenticateFailuresAreUniform(t *testing.T) {
	repo := newStubAuthRepo()
	seedOperator(t, repo, "active@darklock.test", "correct horse", true)
	seedOperator(t, repo, "locked@darklock.test", "correct horse", false)
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "missing@darklock.test", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "locked@darklock.test", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "active@darklock.test", "wrong password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	creds, err := svc.Authenticate(ctx, "active@darklock.test", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "active@darklock.test", creds.Operator.Email)
}

func TestVerifyTOTPSkippedWhenDisabled(t *testing.T) {
	svc := NewService(newStubAuthRepo())
	require.NoError(t, svc.VerifyTOTP(Credentials{TOTPEnabled: false}, ""))
}

func TestVerifyTOTPRejectsBadCode(t *testing.T) {
	svc := NewService(newStubAuthRepo())
	err := svc.VerifyTOTP(Credentials{TOTPEnabled: true, TOTPSecret: "JBSWY3DPEHPK3PXP"}, "000000")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestTOTPEnrollmentRoundTrip(t *testing.T) {
	repo := newStubAuthRepo()
	creds := seedOperator(t, repo, "ops@darklock.test", "correct horse", true)
	svc := NewService(repo)
	ctx := context.Background()

	secret, url, err := svc.BeginTOTPEnrollment(ctx, creds.Operator)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Contains(t, url, "otpauth://")
	assert.False(t, repo.enabled[creds.Operator.ID], "secret stays disabled until confirmed")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmTOTPEnrollment(ctx, creds.Operator, code))
	assert.True(t, repo.enabled[creds.Operator.ID])
}

func TestConfirmTOTPWithoutPendingSecret(t *testing.T) {
	repo := newStubAuthRepo()
	creds := seedOperator(t, repo, "ops@darklock.test", "correct horse", true)
	svc := NewService(repo)

	err := svc.ConfirmTOTPEnrollment(context.Background(), creds.Operator, "123456")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSessionLifecycle(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.RegisterSession(ctx, "sess-1", 42, time.Now().Add(time.Hour), "198.51.100.1", "test-agent"))
	assert.Equal(t, int64(42), repo.sessions["sess-1"])

	require.NoError(t, svc.RemoveSession(ctx, "sess-1"))
	assert.NotContains(t, repo.sessions, "sess-1")
}
