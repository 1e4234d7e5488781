package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookplatform/internal/model"
	"bookplatform/internal/pkg/jwtutil"
)

const testSecret = "test-secret"

func validRegister() RegisterInput {
	return RegisterInput{
		Email:           "  Reader@Example.com ",
		Password:        "correct-horse",
		Name:            "Reader",
		OS:              "Ubuntu 22.04",
		GPU:             "RTX 4070",
		ExperienceLevel: "Intermediate",
	}
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserStore()
	svc := NewAuthService(users, testSecret, time.Hour)

	registered, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", registered.User.Email)
	assert.Equal(t, model.ExperienceIntermediate, registered.User.ExperienceLevel)
	assert.NotEqual(t, "correct-horse", registered.User.PasswordHash)

	claims, err := jwtutil.ParseToken(testSecret, registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.UserID)
	assert.Equal(t, "reader@example.com", claims.Email)

	loggedIn, err := svc.Login(ctx, LoginInput{Email: "READER@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)
	assert.NotNil(t, loggedIn.User.LastLoginAt)
	assert.Equal(t, 1, users.logins)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(newFakeUserStore(), testSecret, time.Hour)

	short := validRegister()
	short.Password = "short"
	_, err := svc.Register(ctx, short)
	assert.ErrorIs(t, err, ErrInvalidInput)

	badLevel := validRegister()
	badLevel.ExperienceLevel = "expert"
	_, err = svc.Register(ctx, badLevel)
	assert.ErrorIs(t, err, ErrInvalidInput)

	noLevel := validRegister()
	noLevel.ExperienceLevel = ""
	res, err := svc.Register(ctx, noLevel)
	require.NoError(t, err)
	assert.Equal(t, model.ExperienceBeginner, res.User.ExperienceLevel)

	_, err = svc.Register(ctx, validRegister())
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestAuthService_LoginFailures(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(newFakeUserStore(), testSecret, time.Hour)
	_, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "reader@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(ctx, LoginInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthService_GetUserByID(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(newFakeUserStore(), testSecret, time.Hour)
	res, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	user, err := svc.GetUserByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reader", user.Name)

	_, err = svc.GetUserByID(ctx, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
