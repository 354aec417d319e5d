package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/svnapro/campus-api/internal/models"
	"github.com/svnapro/campus-api/pkg/config"
	appErrors "github.com/svnapro/campus-api/pkg/errors"
)

type userStoreStub struct {
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func newUserStoreStub(users ...*models.User) *userStoreStub {
	stub := &userStoreStub{users: make(map[string]*models.User), tokens: make(map[string]*models.RefreshToken)}
	for _, user := range users {
		stub.users[user.ID] = user
	}
	return stub
}

func (s *userStoreStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			copy := *user
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if user, ok := s.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (s *userStoreStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = token.Token[:8]
	}
	s.tokens[token.Token] = token
	return nil
}

func (s *userStoreStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := s.tokens[token]; ok && !stored.Revoked {
		copy := *stored
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range s.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *userStoreStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	now := time.Now()
	for _, token := range s.tokens {
		if token.UserID == userID {
			token.Revoked = true
			token.RevokedAt = &now
		}
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *userStoreStub) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	collegeID := "col-1"
	users := newUserStoreStub(&models.User{
		ID:           "user-1",
		Email:        "admin@college.test",
		PasswordHash: string(hash),
		FullName:     "Campus Admin",
		Role:         models.RoleAdmin,
		CollegeID:    &collegeID,
		Active:       true,
	})
	svc := NewAuthService(users, &auditStub{}, config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
		Issuer:            "campus-api-test",
	}, nil)
	return svc, users
}

func TestAuthServiceLogin(t *testing.T) {
	svc, users := newAuthFixture(t)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@college.test",
		Password: "s3cret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "user-1", res.User.ID)
	require.NotNil(t, users.users["user-1"].LastLogin)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	require.NotNil(t, claims.CollegeID)
	assert.Equal(t, "col-1", *claims.CollegeID)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@college.test",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, users := newAuthFixture(t)
	users.users["user-1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@college.test",
		Password: "s3cret",
	})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, users := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@college.test",
		Password: "s3cret",
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The consumed token cannot be replayed.
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	assert.True(t, users.tokens[login.RefreshToken].Revoked)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceLogoutRevokesAllSessions(t *testing.T) {
	svc, users := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@college.test",
		Password: "s3cret",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "user-1"))
	assert.True(t, users.tokens[login.RefreshToken].Revoked)
}
