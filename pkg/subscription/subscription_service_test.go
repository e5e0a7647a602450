package subscription

import (
	"context"
	"testing"

	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/pkg/recipe"
	"foodgram-backend/pkg/user"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&entities.User{},
		&entities.Subscription{},
		&entities.Tag{},
		&entities.Ingredient{},
		&entities.Recipe{},
		&entities.IngredientInRecipe{},
		&entities.Favorite{},
		&entities.ShoppingCartEntry{},
	)
	require.NoError(t, err)

	return db
}

func newTestService(t *testing.T) (SubscriptionService, *gorm.DB) {
	db := setupTestDB(t)
	return NewSubscriptionService(user.NewUserRepository(db), recipe.NewRecipeRepository(db)), db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *entities.User {
	u := &entities.User{
		ID:       uuid.New(),
		Email:    username + "@example.com",
		Username: username,
		Role:     entities.RoleUser,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createAuthorRecipes(t *testing.T, db *gorm.DB, author *entities.User, n int) {
	for i := 0; i < n; i++ {
		r := &entities.Recipe{
			ID:          uuid.New(),
			AuthorID:    author.ID,
			Name:        "recipe",
			CookingTime: 10,
			ShortLink:   uuid.NewString()[:entities.ShortLinkLength],
		}
		require.NoError(t, db.Create(r).Error)
	}
}

func TestSubscribeToSelfRejected(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	u := createTestUser(t, db, "alice")

	_, err := service.Subscribe(ctx, u.ID.String(), u.ID.String(), 0)
	require.Error(t, err)

	validationErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, validationErr.Fields, "following")

	var count int64
	require.NoError(t, db.Model(&entities.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubscribeLifecycle(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	createAuthorRecipes(t, db, bob, 3)

	res, err := service.Subscribe(ctx, alice.ID.String(), bob.ID.String(), 0)
	require.NoError(t, err)
	assert.Equal(t, bob.ID.String(), res.ID)
	assert.True(t, res.IsSubscribed)
	assert.Equal(t, int64(3), res.RecipesCount)
	assert.Len(t, res.Recipes, 3)

	_, err = service.Subscribe(ctx, alice.ID.String(), bob.ID.String(), 0)
	assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)

	require.NoError(t, service.Unsubscribe(ctx, alice.ID.String(), bob.ID.String()))
	err = service.Unsubscribe(ctx, alice.ID.String(), bob.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotSubscribed)
}

func TestSubscribeToUnknownUser(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	_, err := service.Subscribe(ctx, alice.ID.String(), uuid.NewString(), 0)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	err = service.Unsubscribe(ctx, alice.ID.String(), uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestGetSubscriptionsRecipesLimit(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	createAuthorRecipes(t, db, bob, 5)
	createAuthorRecipes(t, db, carol, 1)

	_, err := service.Subscribe(ctx, alice.ID.String(), bob.ID.String(), 0)
	require.NoError(t, err)
	_, err = service.Subscribe(ctx, alice.ID.String(), carol.ID.String(), 0)
	require.NoError(t, err)

	subs, count, err := service.GetSubscriptions(ctx, alice.ID.String(), 1, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.Len(t, subs, 2)

	byUsername := map[string]domain.SubscriptionResponse{}
	for _, sub := range subs {
		byUsername[sub.Username] = sub
	}
	assert.Len(t, byUsername["bob"].Recipes, 2, "recipes are trimmed to the limit")
	assert.Equal(t, int64(5), byUsername["bob"].RecipesCount, "count reflects all recipes")
	assert.Len(t, byUsername["carol"].Recipes, 1)

	// Zero means no trimming.
	subs, _, err = service.GetSubscriptions(ctx, alice.ID.String(), 1, 10, 0)
	require.NoError(t, err)
	byUsername = map[string]domain.SubscriptionResponse{}
	for _, sub := range subs {
		byUsername[sub.Username] = sub
	}
	assert.Len(t, byUsername["bob"].Recipes, 5)
}
