package recipe

import (
	"context"
	"strings"
	"testing"

	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/pkg/ingredient"
	"foodgram-backend/pkg/tag"
	"foodgram-backend/pkg/user"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeS3 struct{}

func (f *fakeS3) UploadBase64(fileName, data, folder string, allowedTypes ...string) (string, error) {
	return folder + "/" + fileName + ".png", nil
}

func (f *fakeS3) UpdateBase64(objectKey, data string, allowedTypes ...string) (string, error) {
	return objectKey, nil
}

func (f *fakeS3) DeleteFile(objectKey string) error { return nil }

func (f *fakeS3) GetObjectKeyFromLink(link string) string {
	return strings.TrimPrefix(link, "https://cdn.test/")
}

func (f *fakeS3) GetPublicLinkKey(objectKey string) string {
	return "https://cdn.test/" + objectKey
}

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

func newTestService(t *testing.T) (RecipeService, *gorm.DB) {
	db := setupTestDB(t)
	service := NewRecipeService(
		NewRecipeRepository(db),
		tag.NewTagRepository(db),
		ingredient.NewIngredientRepository(db),
		user.NewUserRepository(db),
		&fakeS3{},
	)
	return service, db
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

func createTestTag(t *testing.T, db *gorm.DB, name, slug string) *entities.Tag {
	tg := &entities.Tag{ID: uuid.New(), Name: name, Slug: slug}
	require.NoError(t, db.Create(tg).Error)
	return tg
}

func createTestIngredient(t *testing.T, db *gorm.DB, name, unit string) *entities.Ingredient {
	ing := &entities.Ingredient{ID: uuid.New(), Name: name, MeasurementUnit: unit}
	require.NoError(t, db.Create(ing).Error)
	return ing
}

func validRecipeRequest(tags []*entities.Tag, ingredients ...domain.IngredientAmountRequest) domain.RecipeRequest {
	tagIDs := make([]string, 0, len(tags))
	for _, tg := range tags {
		tagIDs = append(tagIDs, tg.ID.String())
	}
	return domain.RecipeRequest{
		Name:        "Borscht",
		Text:        "Simmer for an hour",
		CookingTime: 60,
		Image:       "https://cdn.test/recipes/borscht.png",
		Tags:        tagIDs,
		Ingredients: ingredients,
	}
}

func TestCreateRecipeRoundTrip(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	dinner := createTestTag(t, db, "dinner", "dinner")
	beet := createTestIngredient(t, db, "beet", "pcs")
	salt := createTestIngredient(t, db, "salt", "g")

	req := validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 3},
		domain.IngredientAmountRequest{ID: salt.ID.String(), Amount: 10},
	)

	res, err := service.CreateRecipe(ctx, req, author.ID.String())
	require.NoError(t, err)

	assert.Equal(t, "Borscht", res.Name)
	assert.Equal(t, 60, res.CookingTime)
	assert.Equal(t, author.ID.String(), res.Author.ID)
	require.Len(t, res.Tags, 1)
	assert.Equal(t, "dinner", res.Tags[0].Slug)
	require.Len(t, res.Ingredients, 2)

	amounts := map[string]int{}
	for _, row := range res.Ingredients {
		amounts[row.Name] = row.Amount
	}
	assert.Equal(t, 3, amounts["beet"])
	assert.Equal(t, 10, amounts["salt"])
	assert.False(t, res.PubDate.IsZero())
}

func TestCreateRecipeDuplicateTagsRejected(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	dinner := createTestTag(t, db, "dinner", "dinner")
	beet := createTestIngredient(t, db, "beet", "pcs")

	req := validRecipeRequest([]*entities.Tag{dinner, dinner},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 3},
	)

	_, err := service.CreateRecipe(ctx, req, author.ID.String())
	require.Error(t, err)

	validationErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, validationErr.Fields, "tags")

	var count int64
	require.NoError(t, db.Model(&entities.Recipe{}).Count(&count).Error)
	assert.Zero(t, count, "rejected recipe must not be stored")
}

func TestCreateRecipeAggregatesFieldErrors(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")

	req := domain.RecipeRequest{
		Name:        "Broken",
		Text:        "no image, no tags, no ingredients",
		CookingTime: 0,
	}

	_, err := service.CreateRecipe(ctx, req, author.ID.String())
	require.Error(t, err)

	validationErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, validationErr.Fields, "image")
	assert.Contains(t, validationErr.Fields, "cooking_time")
	assert.Contains(t, validationErr.Fields, "tags")
	assert.Contains(t, validationErr.Fields, "ingredients")
}

func TestCreateRecipeAmountBounds(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	dinner := createTestTag(t, db, "dinner", "dinner")
	salt := createTestIngredient(t, db, "salt", "g")

	req := validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: salt.ID.String(), Amount: entities.MaxAmount + 1},
	)

	_, err := service.CreateRecipe(ctx, req, author.ID.String())
	require.Error(t, err)

	validationErr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, validationErr.Fields, "ingredients")
}

func TestCreateRecipeUnknownIngredient(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	dinner := createTestTag(t, db, "dinner", "dinner")

	req := validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: uuid.NewString(), Amount: 3},
	)

	_, err := service.CreateRecipe(ctx, req, author.ID.String())
	assert.ErrorIs(t, err, domain.ErrIngredientNotFound)
}

func TestUpdateRecipeReplacesAssociations(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	dinner := createTestTag(t, db, "dinner", "dinner")
	lunch := createTestTag(t, db, "lunch", "lunch")
	beet := createTestIngredient(t, db, "beet", "pcs")
	carrot := createTestIngredient(t, db, "carrot", "pcs")

	created, err := service.CreateRecipe(ctx, validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 3},
	), author.ID.String())
	require.NoError(t, err)

	update := validRecipeRequest([]*entities.Tag{lunch},
		domain.IngredientAmountRequest{ID: carrot.ID.String(), Amount: 5},
	)
	updated, err := service.UpdateRecipe(ctx, created.ID, update, author.ID.String(), entities.RoleUser)
	require.NoError(t, err)

	require.Len(t, updated.Tags, 1)
	assert.Equal(t, "lunch", updated.Tags[0].Slug)
	require.Len(t, updated.Ingredients, 1)
	assert.Equal(t, "carrot", updated.Ingredients[0].Name)
	assert.Equal(t, 5, updated.Ingredients[0].Amount)

	var rows int64
	require.NoError(t, db.Model(&entities.IngredientInRecipe{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows, "old ingredient rows must be gone")
}

func TestUpdateRecipeForbiddenForOtherUser(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	stranger := createTestUser(t, db, "stranger")
	dinner := createTestTag(t, db, "dinner", "dinner")
	beet := createTestIngredient(t, db, "beet", "pcs")

	created, err := service.CreateRecipe(ctx, validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 3},
	), author.ID.String())
	require.NoError(t, err)

	_, err = service.UpdateRecipe(ctx, created.ID, validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 1},
	), stranger.ID.String(), entities.RoleUser)
	assert.ErrorIs(t, err, domain.ErrUserNotAllowed)

	err = service.DeleteRecipe(ctx, created.ID, stranger.ID.String(), entities.RoleUser)
	assert.ErrorIs(t, err, domain.ErrUserNotAllowed)

	err = service.DeleteRecipe(ctx, created.ID, stranger.ID.String(), entities.RoleAdmin)
	assert.NoError(t, err, "admins may delete any recipe")
}

func TestShortLinkGeneration(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	dinner := createTestTag(t, db, "dinner", "dinner")
	beet := createTestIngredient(t, db, "beet", "pcs")

	seen := map[string]bool{}
	var firstID string
	for i := 0; i < 5; i++ {
		req := validRecipeRequest([]*entities.Tag{dinner},
			domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 1},
		)
		res, err := service.CreateRecipe(ctx, req, author.ID.String())
		require.NoError(t, err)
		if firstID == "" {
			firstID = res.ID
		}

		var stored entities.Recipe
		require.NoError(t, db.Where("id = ?", res.ID).First(&stored).Error)
		assert.Len(t, stored.ShortLink, entities.ShortLinkLength)
		for _, ch := range stored.ShortLink {
			assert.Contains(t, entities.ShortLinkAlphabet, string(ch))
		}
		assert.False(t, seen[stored.ShortLink], "short links must be unique")
		seen[stored.ShortLink] = true
	}

	first, err := service.GetShortLink(ctx, firstID, "https://foodgram.test")
	require.NoError(t, err)
	second, err := service.GetShortLink(ctx, firstID, "https://foodgram.test")
	require.NoError(t, err)
	assert.Equal(t, first.ShortLink, second.ShortLink, "short link must be stable")
	assert.True(t, strings.HasPrefix(first.ShortLink, "https://foodgram.test/s/"))

	token := strings.TrimPrefix(first.ShortLink, "https://foodgram.test/s/")
	resolved, err := service.ResolveShortLink(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, firstID, resolved)

	_, err = service.ResolveShortLink(ctx, "AAAAAAAAAA")
	assert.ErrorIs(t, err, domain.ErrShortLinkNotFound)
}

func TestFavoriteLifecycle(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	viewer := createTestUser(t, db, "viewer")
	dinner := createTestTag(t, db, "dinner", "dinner")
	beet := createTestIngredient(t, db, "beet", "pcs")

	created, err := service.CreateRecipe(ctx, validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 1},
	), author.ID.String())
	require.NoError(t, err)

	short, err := service.AddFavorite(ctx, created.ID, viewer.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.Name, short.Name)

	_, err = service.AddFavorite(ctx, created.ID, viewer.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyFavorited)

	detail, err := service.GetRecipeDetail(ctx, created.ID, viewer.ID.String())
	require.NoError(t, err)
	assert.True(t, detail.IsFavorited)

	require.NoError(t, service.RemoveFavorite(ctx, created.ID, viewer.ID.String()))
	err = service.RemoveFavorite(ctx, created.ID, viewer.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFavorited)

	_, err = service.AddFavorite(ctx, uuid.NewString(), viewer.ID.String())
	assert.ErrorIs(t, err, domain.ErrRecipeNotFound)
}

func TestShoppingCartAggregation(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	buyer := createTestUser(t, db, "buyer")
	dinner := createTestTag(t, db, "dinner", "dinner")
	salt := createTestIngredient(t, db, "salt", "g")
	beet := createTestIngredient(t, db, "beet", "pcs")

	first, err := service.CreateRecipe(ctx, validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: salt.ID.String(), Amount: 10},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 2},
	), author.ID.String())
	require.NoError(t, err)

	second, err := service.CreateRecipe(ctx, validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: salt.ID.String(), Amount: 15},
	), author.ID.String())
	require.NoError(t, err)

	_, err = service.AddToShoppingCart(ctx, first.ID, buyer.ID.String())
	require.NoError(t, err)
	_, err = service.AddToShoppingCart(ctx, second.ID, buyer.ID.String())
	require.NoError(t, err)

	_, err = service.AddToShoppingCart(ctx, first.ID, buyer.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyInShoppingCart)

	content, err := service.DownloadShoppingCart(ctx, buyer.ID.String())
	require.NoError(t, err)
	assert.Contains(t, content, "• salt - 25 g")
	assert.Contains(t, content, "• beet - 2 pcs")

	require.NoError(t, service.RemoveFromShoppingCart(ctx, first.ID, buyer.ID.String()))
	require.NoError(t, service.RemoveFromShoppingCart(ctx, second.ID, buyer.ID.String()))
	err = service.RemoveFromShoppingCart(ctx, second.ID, buyer.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotInShoppingCart)

	content, err = service.DownloadShoppingCart(ctx, buyer.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.EmptyShoppingList, content)
}

func TestGetRecipesFilters(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	other := createTestUser(t, db, "other")
	dinner := createTestTag(t, db, "dinner", "dinner")
	lunch := createTestTag(t, db, "lunch", "lunch")
	beet := createTestIngredient(t, db, "beet", "pcs")

	dinnerRecipe, err := service.CreateRecipe(ctx, validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 1},
	), author.ID.String())
	require.NoError(t, err)

	lunchReq := validRecipeRequest([]*entities.Tag{lunch},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 1},
	)
	lunchReq.Name = "Salad"
	_, err = service.CreateRecipe(ctx, lunchReq, other.ID.String())
	require.NoError(t, err)

	recipes, count, err := service.GetRecipes(ctx, domain.GetRecipesQuery{Page: 1, Limit: 10}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, recipes, 2)

	recipes, count, err = service.GetRecipes(ctx, domain.GetRecipesQuery{
		Page: 1, Limit: 10, TagSlugs: []string{"dinner"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, recipes, 1)
	assert.Equal(t, dinnerRecipe.ID, recipes[0].ID)

	recipes, count, err = service.GetRecipes(ctx, domain.GetRecipesQuery{
		Page: 1, Limit: 10, AuthorID: other.ID.String(),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, recipes, 1)
	assert.Equal(t, "Salad", recipes[0].Name)

	_, err = service.AddFavorite(ctx, dinnerRecipe.ID, other.ID.String())
	require.NoError(t, err)
	recipes, count, err = service.GetRecipes(ctx, domain.GetRecipesQuery{
		Page: 1, Limit: 10, IsFavorited: true,
	}, other.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, recipes, 1)
	assert.Equal(t, dinnerRecipe.ID, recipes[0].ID)
}

func TestDeleteRecipeClearsMemberships(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	author := createTestUser(t, db, "chef")
	viewer := createTestUser(t, db, "viewer")
	dinner := createTestTag(t, db, "dinner", "dinner")
	beet := createTestIngredient(t, db, "beet", "pcs")

	created, err := service.CreateRecipe(ctx, validRecipeRequest([]*entities.Tag{dinner},
		domain.IngredientAmountRequest{ID: beet.ID.String(), Amount: 1},
	), author.ID.String())
	require.NoError(t, err)

	_, err = service.AddFavorite(ctx, created.ID, viewer.ID.String())
	require.NoError(t, err)
	_, err = service.AddToShoppingCart(ctx, created.ID, viewer.ID.String())
	require.NoError(t, err)

	require.NoError(t, service.DeleteRecipe(ctx, created.ID, author.ID.String(), entities.RoleUser))

	for _, model := range []any{
		&entities.Favorite{},
		&entities.ShoppingCartEntry{},
		&entities.IngredientInRecipe{},
	} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		assert.Zero(t, count)
	}

	_, err = service.GetRecipeDetail(ctx, created.ID, "")
	assert.ErrorIs(t, err, domain.ErrRecipeNotFound)
}
