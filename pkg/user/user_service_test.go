package user

import (
	"context"
	"strings"
	"testing"

	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/pkg/jwt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeS3 struct {
	deleted []string
}

func (f *fakeS3) UploadBase64(fileName, data, folder string, allowedTypes ...string) (string, error) {
	return folder + "/" + fileName + ".png", nil
}

func (f *fakeS3) UpdateBase64(objectKey, data string, allowedTypes ...string) (string, error) {
	return objectKey, nil
}

func (f *fakeS3) DeleteFile(objectKey string) error {
	f.deleted = append(f.deleted, objectKey)
	return nil
}

func (f *fakeS3) GetObjectKeyFromLink(link string) string {
	return strings.TrimPrefix(link, "https://cdn.test/")
}

func (f *fakeS3) GetPublicLinkKey(objectKey string) string {
	return "https://cdn.test/" + objectKey
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.User{}, &entities.Subscription{})
	require.NoError(t, err)

	return db
}

func newTestService(t *testing.T) (UserService, jwt.JWTService, *gorm.DB) {
	db := setupTestDB(t)
	jwtService := jwt.NewJWTService()
	return NewUserService(NewUserRepository(db), jwtService, &fakeS3{}), jwtService, db
}

func registerRequest(username string) domain.RegisterRequest {
	return domain.RegisterRequest{
		Email:     username + "@example.com",
		Username:  username,
		FirstName: "Test",
		LastName:  "User",
		Password:  "correct horse battery",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := service.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "alice", res.Username)

	login, err := service.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, entities.RoleUser, login.Role)
}

func TestRegisterDuplicates(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)

	_, err = service.Register(ctx, registerRequest("alice"))
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyUsed)

	req := registerRequest("alice")
	req.Email = "other@example.com"
	_, err = service.Register(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUsernameAlreadyUsed)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)

	_, err = service.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	assert.ErrorIs(t, err, domain.ErrCredentialsNotMatch)

	_, err = service.Login(ctx, domain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	assert.ErrorIs(t, err, domain.ErrCredentialsNotMatch)
}

func TestGetProfile(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := service.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)

	profile, err := service.GetProfile(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.False(t, profile.IsSubscribed)

	_, err = service.GetProfile(ctx, uuid.NewString(), "")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestAvatarLifecycle(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := service.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)

	err = service.DeleteAvatar(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrAvatarNotSet)

	updated, err := service.UpdateAvatar(ctx, res.ID, domain.UpdateAvatarRequest{
		Avatar: "data:image/png;base64,aGVsbG8=",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(updated.Avatar, "https://cdn.test/users/"))

	profile, err := service.GetProfile(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, updated.Avatar, profile.Avatar)

	require.NoError(t, service.DeleteAvatar(ctx, res.ID))
	profile, err = service.GetProfile(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Empty(t, profile.Avatar)
}

func TestResetPassword(t *testing.T) {
	service, jwtService, _ := newTestService(t)
	ctx := context.Background()

	res, err := service.Register(ctx, registerRequest("alice"))
	require.NoError(t, err)

	token, err := jwtService.GenerateTokenResetPassword(
		map[string]any{"user_id": res.ID},
		domain.ResetPasswordTokenDuration,
	)
	require.NoError(t, err)

	err = service.ResetPassword(ctx, domain.ResetPasswordRequest{
		Token:    token,
		Password: "a brand new password",
	})
	require.NoError(t, err)

	_, err = service.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})
	assert.ErrorIs(t, err, domain.ErrCredentialsNotMatch)

	login, err := service.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "a brand new password",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)
}
