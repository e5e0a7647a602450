package recipe

import (
	"context"
	"errors"
	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// shortLinkMaxAttempts bounds the draw-and-check loop. At 62^10 possible
// tokens the bound is unreachable in practice; hitting it aborts the
// surrounding transaction.
const shortLinkMaxAttempts = 100000

type (
	RecipeRepository interface {
		CreateRecipe(ctx context.Context, recipe *entities.Recipe, tags []*entities.Tag, ingredients []*entities.IngredientInRecipe) error
		UpdateRecipe(ctx context.Context, recipe *entities.Recipe, tags []*entities.Tag, ingredients []*entities.IngredientInRecipe) error
		DeleteRecipe(ctx context.Context, recipeID string) error
		GetRecipeByID(ctx context.Context, id string) (*entities.Recipe, error)
		GetRecipeByShortLink(ctx context.Context, shortLink string) (*entities.Recipe, error)
		GetRecipes(ctx context.Context, query domain.GetRecipesQuery, viewerID string) ([]*entities.Recipe, int64, error)
		GetRecipesByAuthor(ctx context.Context, authorID string, limit int) ([]*entities.Recipe, error)
		CountRecipesByAuthor(ctx context.Context, authorID string) (int64, error)

		AddFavorite(ctx context.Context, userID, recipeID string) error
		RemoveFavorite(ctx context.Context, userID, recipeID string) error
		IsFavorited(ctx context.Context, userID, recipeID string) (bool, error)

		AddToShoppingCart(ctx context.Context, userID, recipeID string) error
		RemoveFromShoppingCart(ctx context.Context, userID, recipeID string) error
		IsInShoppingCart(ctx context.Context, userID, recipeID string) (bool, error)
		GetShoppingList(ctx context.Context, userID string) ([]domain.ShoppingListItem, error)
	}

	recipeRepository struct {
		db *gorm.DB
	}
)

func NewRecipeRepository(db *gorm.DB) RecipeRepository {
	return &recipeRepository{db: db}
}

func randomShortLink() string {
	link := make([]byte, entities.ShortLinkLength)
	for i := range link {
		link[i] = entities.ShortLinkAlphabet[rand.Intn(len(entities.ShortLinkAlphabet))]
	}
	return string(link)
}

func generateShortLink(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < shortLinkMaxAttempts; attempt++ {
		link := randomShortLink()
		var count int64
		if err := tx.Model(&entities.Recipe{}).Where("short_link = ?", link).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return link, nil
		}
	}
	return "", domain.ErrShortLinkExhausted
}

func replaceAssociations(tx *gorm.DB, recipe *entities.Recipe, tags []*entities.Tag, ingredients []*entities.IngredientInRecipe) error {
	if err := tx.Model(recipe).Association("Tags").Clear(); err != nil {
		return err
	}
	if err := tx.Model(recipe).Association("Tags").Append(tags); err != nil {
		return err
	}

	if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&entities.IngredientInRecipe{}).Error; err != nil {
		return err
	}
	for _, ingredient := range ingredients {
		ingredient.ID = uuid.New()
		ingredient.RecipeID = recipe.ID
	}
	return tx.Create(&ingredients).Error
}

func (r *recipeRepository) CreateRecipe(ctx context.Context, recipe *entities.Recipe, tags []*entities.Tag, ingredients []*entities.IngredientInRecipe) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if recipe.ID == uuid.Nil {
			recipe.ID = uuid.New()
		}
		if recipe.PubDate.IsZero() {
			recipe.PubDate = time.Now()
		}
		if recipe.ShortLink == "" {
			shortLink, err := generateShortLink(tx)
			if err != nil {
				return err
			}
			recipe.ShortLink = shortLink
		}

		if err := tx.Omit(clause.Associations).Create(recipe).Error; err != nil {
			return err
		}
		return replaceAssociations(tx, recipe, tags, ingredients)
	})
}

func (r *recipeRepository) UpdateRecipe(ctx context.Context, recipe *entities.Recipe, tags []*entities.Tag, ingredients []*entities.IngredientInRecipe) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(recipe).Error; err != nil {
			return err
		}
		return replaceAssociations(tx, recipe, tags, ingredients)
	})
}

func (r *recipeRepository) DeleteRecipe(ctx context.Context, recipeID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recipe := entities.Recipe{}
		if err := tx.Where("id = ?", recipeID).First(&recipe).Error; err != nil {
			return err
		}
		if err := tx.Model(&recipe).Association("Tags").Clear(); err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&entities.IngredientInRecipe{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&entities.Favorite{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&entities.ShoppingCartEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&recipe).Error
	})
}

func (r *recipeRepository) GetRecipeByID(ctx context.Context, id string) (*entities.Recipe, error) {
	var recipe entities.Recipe
	if err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Tags").
		Preload("Ingredients.Ingredient").
		Where("id = ?", id).
		First(&recipe).Error; err != nil {
		return nil, err
	}
	return &recipe, nil
}

func (r *recipeRepository) GetRecipeByShortLink(ctx context.Context, shortLink string) (*entities.Recipe, error) {
	var recipe entities.Recipe
	if err := r.db.WithContext(ctx).Where("short_link = ?", shortLink).First(&recipe).Error; err != nil {
		return nil, err
	}
	return &recipe, nil
}

func (r *recipeRepository) recipesQuery(ctx context.Context, query domain.GetRecipesQuery, viewerID string) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&entities.Recipe{})

	if query.AuthorID != "" {
		q = q.Where("author_id = ?", query.AuthorID)
	}
	if len(query.TagSlugs) > 0 {
		q = q.Where("recipes.id IN (?)", r.db.
			Table("recipe_tags").
			Select("recipe_tags.recipe_id").
			Joins("JOIN tags ON tags.id = recipe_tags.tag_id").
			Where("tags.slug IN ?", query.TagSlugs))
	}
	if query.IsFavorited && viewerID != "" {
		q = q.Where("recipes.id IN (?)", r.db.
			Model(&entities.Favorite{}).
			Select("recipe_id").
			Where("user_id = ?", viewerID))
	}
	if query.IsInShoppingCart && viewerID != "" {
		q = q.Where("recipes.id IN (?)", r.db.
			Model(&entities.ShoppingCartEntry{}).
			Select("recipe_id").
			Where("user_id = ?", viewerID))
	}
	return q
}

func (r *recipeRepository) GetRecipes(ctx context.Context, query domain.GetRecipesQuery, viewerID string) ([]*entities.Recipe, int64, error) {
	var recipes []*entities.Recipe
	var count int64
	offset := (query.Page - 1) * query.Limit

	if err := r.recipesQuery(ctx, query, viewerID).Count(&count).Error; err != nil {
		return nil, 0, err
	}

	if err := r.recipesQuery(ctx, query, viewerID).
		Preload("Author").
		Preload("Tags").
		Preload("Ingredients.Ingredient").
		Offset(offset).
		Limit(query.Limit).
		Order("pub_date desc, name asc").
		Find(&recipes).Error; err != nil {
		return nil, 0, err
	}

	return recipes, count, nil
}

func (r *recipeRepository) GetRecipesByAuthor(ctx context.Context, authorID string, limit int) ([]*entities.Recipe, error) {
	var recipes []*entities.Recipe
	q := r.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("pub_date desc, name asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recipes).Error; err != nil {
		return nil, err
	}
	return recipes, nil
}

func (r *recipeRepository) CountRecipesByAuthor(ctx context.Context, authorID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.Recipe{}).
		Where("author_id = ?", authorID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *recipeRepository) AddFavorite(ctx context.Context, userID, recipeID string) error {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return domain.ErrParseUUID
	}
	recipeUUID, err := uuid.Parse(recipeID)
	if err != nil {
		return domain.ErrParseUUID
	}

	exists, err := r.IsFavorited(ctx, userID, recipeID)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrAlreadyFavorited
	}

	favorite := entities.Favorite{
		ID:        uuid.New(),
		UserID:    userUUID,
		RecipeID:  recipeUUID,
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&favorite).Error; err != nil {
		// A racing duplicate insert loses on the unique index and
		// surfaces the same way as an explicit duplicate.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAlreadyFavorited
		}
		return err
	}
	return nil
}

func (r *recipeRepository) RemoveFavorite(ctx context.Context, userID, recipeID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND recipe_id = ?", userID, recipeID).
		Delete(&entities.Favorite{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFavorited
	}
	return nil
}

func (r *recipeRepository) IsFavorited(ctx context.Context, userID, recipeID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.Favorite{}).
		Where("user_id = ? AND recipe_id = ?", userID, recipeID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *recipeRepository) AddToShoppingCart(ctx context.Context, userID, recipeID string) error {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return domain.ErrParseUUID
	}
	recipeUUID, err := uuid.Parse(recipeID)
	if err != nil {
		return domain.ErrParseUUID
	}

	exists, err := r.IsInShoppingCart(ctx, userID, recipeID)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrAlreadyInShoppingCart
	}

	entry := entities.ShoppingCartEntry{
		ID:        uuid.New(),
		UserID:    userUUID,
		RecipeID:  recipeUUID,
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAlreadyInShoppingCart
		}
		return err
	}
	return nil
}

func (r *recipeRepository) RemoveFromShoppingCart(ctx context.Context, userID, recipeID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND recipe_id = ?", userID, recipeID).
		Delete(&entities.ShoppingCartEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotInShoppingCart
	}
	return nil
}

func (r *recipeRepository) IsInShoppingCart(ctx context.Context, userID, recipeID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.ShoppingCartEntry{}).
		Where("user_id = ? AND recipe_id = ?", userID, recipeID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetShoppingList sums ingredient amounts across every recipe in the
// user's cart, grouped by (name, measurement unit). Computed at request
// time, nothing is materialized.
func (r *recipeRepository) GetShoppingList(ctx context.Context, userID string) ([]domain.ShoppingListItem, error) {
	var items []domain.ShoppingListItem
	if err := r.db.WithContext(ctx).
		Model(&entities.IngredientInRecipe{}).
		Select("ingredients.name AS name, ingredients.measurement_unit AS measurement_unit, SUM(ingredient_in_recipes.amount) AS total_amount").
		Joins("JOIN ingredients ON ingredients.id = ingredient_in_recipes.ingredient_id").
		Where("ingredient_in_recipes.recipe_id IN (?)", r.db.
			Model(&entities.ShoppingCartEntry{}).
			Select("recipe_id").
			Where("user_id = ?", userID)).
		Group("ingredients.name, ingredients.measurement_unit").
		Order("ingredients.name asc").
		Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
