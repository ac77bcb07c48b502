package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/darklock-sec/darklock-console/internal/shared"
	_ "github.com/darklock-sec/darklock-console/testing"
)

type stubOperatorRepo struct {
	operators map[int64]Operator
	grants    map[Role][]Grant
	nextID    int64

	passwordHashes  map[int64]string
	sessionsByOp    map[int64][]string
	deletedIDs      []int64
	revokedSessions []string
}

func newStubOperatorRepo() *stubOperatorRepo {
	return &stubOperatorRepo{
		operators:      make(map[int64]Operator),
		grants:         make(map[Role][]Grant),
		passwordHashes: make(map[int64]string),
		sessionsByOp:   make(map[int64][]string),
		nextID:         1,
	}
}

func (s *stubOperatorRepo) add(op Operator) Operator {
	if op.ID == 0 {
		op.ID = s.nextID
		s.nextID++
	} else if op.ID >= s.nextID {
		s.nextID = op.ID + 1
	}
	s.operators[op.ID] = op
	return op
}

func (s *stubOperatorRepo) GetOperator(ctx context.Context, id int64) (Operator, error) {
	op, ok := s.operators[id]
	if !ok {
		return Operator{}, shared.ErrNotFound
	}
	return op, nil
}

func (s *stubOperatorRepo) ListOperators(ctx context.Context) ([]Operator, error) {
	out := make([]Operator, 0, len(s.operators))
	for _, op := range s.operators {
		out = append(out, op)
	}
	return out, nil
}

func (s *stubOperatorRepo) CreateOperator(ctx context.Context, params CreateOperatorParams) (Operator, error) {
	for _, op := range s.operators {
		if op.Email == params.Email {
			return Operator{}, shared.ErrConflict
		}
	}
	op := s.add(Operator{Email: params.Email, DisplayName: params.DisplayName, Role: params.Role, IsActive: true})
	s.passwordHashes[op.ID] = params.PasswordHash
	return op, nil
}

func (s *stubOperatorRepo) UpdateOperator(ctx context.Context, id int64, params UpdateOperatorParams) (Operator, error) {
	op, ok := s.operators[id]
	if !ok {
		return Operator{}, shared.ErrNotFound
	}
	if params.DisplayName != nil {
		op.DisplayName = *params.DisplayName
	}
	if params.Role != nil {
		op.Role = *params.Role
	}
	if params.IsActive != nil {
		op.IsActive = *params.IsActive
	}
	s.operators[id] = op
	return op, nil
}

func (s *stubOperatorRepo) DeleteOperator(ctx context.Context, id int64) error {
	if _, ok := s.operators[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.operators, id)
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

func (s *stubOperatorRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	if _, ok := s.operators[id]; !ok {
		return shared.ErrNotFound
	}
	s.passwordHashes[id] = hash
	return nil
}

func (s *stubOperatorRepo) DeleteOperatorSessions(ctx context.Context, operatorID int64) ([]string, error) {
	ids := s.sessionsByOp[operatorID]
	delete(s.sessionsByOp, operatorID)
	return ids, nil
}

func (s *stubOperatorRepo) UpsertGrant(ctx context.Context, grant Grant) error {
	rows := s.grants[grant.Role]
	for i, g := range rows {
		if g.PermissionKey == grant.PermissionKey {
			rows[i] = grant
			s.grants[grant.Role] = rows
			return nil
		}
	}
	s.grants[grant.Role] = append(rows, grant)
	return nil
}

func (s *stubOperatorRepo) ListGrants(ctx context.Context, role Role) ([]Grant, error) {
	return s.grants[role], nil
}

type stubRevoker struct {
	revoked []string
}

func (s *stubRevoker) Revoke(ctx context.Context, sessionID string) error {
	s.revoked = append(s.revoked, sessionID)
	return nil
}

func newTestService(repo *stubOperatorRepo) (*Service, *stubRevoker) {
	revoker := &stubRevoker{}
	return NewService(repo, revoker, nil, nil), revoker
}

func TestCreateOwnerRoleIsOwnerOnly(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, _ := newTestService(repo)
	admin := repo.add(Operator{Email: "admin@darklock.test", Role: RoleAdmin, IsActive: true})

	_, err := svc.Create(context.Background(), admin, CreateInput{
		Email:    "new@darklock.test",
		Password: "longenough",
		Role:     RoleCoOwner,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	owner := repo.add(Operator{Email: "owner@darklock.test", Role: RoleOwner, IsActive: true})
	created, err := svc.Create(context.Background(), owner, CreateInput{
		Email:    "new@darklock.test",
		Password: "longenough",
		Role:     RoleCoOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, RoleCoOwner, created.Role)
}

func TestCreateHashesPassword(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, _ := newTestService(repo)
	owner := repo.add(Operator{Email: "owner@darklock.test", Role: RoleOwner, IsActive: true})

	created, err := svc.Create(context.Background(), owner, CreateInput{
		Email:    "helper@darklock.test",
		Password: "hunter2hunter2",
		Role:     RoleHelper,
	})
	require.NoError(t, err)
	hash := repo.passwordHashes[created.ID]
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "hunter2hunter2", hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2hunter2")))
}

func TestUpdateOwnerRecordProtected(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, _ := newTestService(repo)
	owner := repo.add(Operator{Email: "owner@darklock.test", Role: RoleOwner, IsActive: true})
	coOwner := repo.add(Operator{Email: "co@darklock.test", Role: RoleCoOwner, IsActive: true})

	inactive := false
	_, err := svc.Update(context.Background(), coOwner, owner.ID, UpdateInput{IsActive: &inactive})
	require.ErrorIs(t, err, shared.ErrForbidden)

	// The owner can still edit their own record.
	_, err = svc.Update(context.Background(), owner, owner.ID, UpdateInput{IsActive: &inactive})
	require.NoError(t, err)
}

func TestDeleteRequiresConfirmationPhrase(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, _ := newTestService(repo)
	admin := repo.add(Operator{Email: "admin@darklock.test", Role: RoleAdmin, IsActive: true})
	target := repo.add(Operator{Email: "helper@darklock.test", Role: RoleHelper, IsActive: true})

	err := svc.Delete(context.Background(), admin, target.ID, "delete")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Empty(t, repo.deletedIDs)

	err = svc.Delete(context.Background(), admin, target.ID, "DELETE")
	require.NoError(t, err)
	assert.Equal(t, []int64{target.ID}, repo.deletedIDs)
}

func TestDeleteSelfForbidden(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, _ := newTestService(repo)
	owner := repo.add(Operator{Email: "owner@darklock.test", Role: RoleOwner, IsActive: true})

	err := svc.Delete(context.Background(), owner, owner.ID, "DELETE")
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Contains(t, repo.operators, owner.ID)
}

func TestDeleteRevokesLiveSessions(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, revoker := newTestService(repo)
	admin := repo.add(Operator{Email: "admin@darklock.test", Role: RoleAdmin, IsActive: true})
	target := repo.add(Operator{Email: "helper@darklock.test", Role: RoleHelper, IsActive: true})
	repo.sessionsByOp[target.ID] = []string{"sess-a", "sess-b"}

	require.NoError(t, svc.Delete(context.Background(), admin, target.ID, "DELETE"))
	assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, revoker.revoked)
}

func TestResetPasswordRevokesSessions(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, revoker := newTestService(repo)
	admin := repo.add(Operator{Email: "admin@darklock.test", Role: RoleAdmin, IsActive: true})
	target := repo.add(Operator{Email: "helper@darklock.test", Role: RoleHelper, IsActive: true})
	repo.sessionsByOp[target.ID] = []string{"sess-1"}

	require.NoError(t, svc.ResetPassword(context.Background(), admin, target.ID, "newpassword"))
	assert.Equal(t, []string{"sess-1"}, revoker.revoked)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwordHashes[target.ID]), []byte("newpassword")))
}

func TestResetPasswordTooShort(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, _ := newTestService(repo)
	admin := repo.add(Operator{Email: "admin@darklock.test", Role: RoleAdmin, IsActive: true})

	err := svc.ResetPassword(context.Background(), admin, admin.ID, "short")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSetGrantOwnerOnly(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, _ := newTestService(repo)
	coOwner := repo.add(Operator{Email: "co@darklock.test", Role: RoleCoOwner, IsActive: true})
	owner := repo.add(Operator{Email: "owner@darklock.test", Role: RoleOwner, IsActive: true})

	grant := Grant{Role: RoleAdmin, PermissionKey: PermAccountsDelete, Granted: true}
	require.ErrorIs(t, svc.SetGrant(context.Background(), coOwner, grant), shared.ErrForbidden)

	require.NoError(t, svc.SetGrant(context.Background(), owner, grant))
	rows, err := svc.Grants(context.Background(), RoleAdmin)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Granted)
}

func TestSetGrantNormalizesKey(t *testing.T) {
	repo := newStubOperatorRepo()
	svc, _ := newTestService(repo)
	owner := repo.add(Operator{Email: "owner@darklock.test", Role: RoleOwner, IsActive: true})

	require.NoError(t, svc.SetGrant(context.Background(), owner, Grant{
		Role:          RoleModerator,
		PermissionKey: "  Maintenance.Edit  ",
		Granted:       true,
	}))
	rows, err := svc.Grants(context.Background(), RoleModerator)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, PermMaintenanceEdit, rows[0].PermissionKey)
}
