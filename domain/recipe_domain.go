package domain

import (
	"errors"
	"time"
)

var (
	MessageSuccessGetRecipes          = "success get recipes"
	MessageSuccessGetRecipeDetail     = "success get recipe detail"
	MessageSuccessCreateRecipe        = "recipe created successfully"
	MessageSuccessUpdateRecipe        = "recipe updated successfully"
	MessageSuccessDeleteRecipe        = "recipe deleted successfully"
	MessageSuccessGetLink             = "success get short link"
	MessageSuccessAddFavorite         = "recipe added to favorites"
	MessageSuccessRemoveFavorite      = "recipe removed from favorites"
	MessageSuccessAddShoppingCart     = "recipe added to shopping cart"
	MessageSuccessRemoveShoppingCart  = "recipe removed from shopping cart"

	MessageFailedGetRecipes          = "failed to get recipes"
	MessageFailedGetRecipeDetail     = "failed to get recipe detail"
	MessageFailedCreateRecipe        = "failed to create recipe"
	MessageFailedUpdateRecipe        = "failed to update recipe"
	MessageFailedDeleteRecipe        = "failed to delete recipe"
	MessageFailedGetLink             = "failed to get short link"
	MessageFailedAddFavorite         = "failed to add recipe to favorites"
	MessageFailedRemoveFavorite      = "failed to remove recipe from favorites"
	MessageFailedAddShoppingCart     = "failed to add recipe to shopping cart"
	MessageFailedRemoveShoppingCart  = "failed to remove recipe from shopping cart"
	MessageFailedDownloadShoppingCart = "failed to download shopping cart"

	ErrRecipeNotFound        = errors.New("recipe not found")
	ErrShortLinkNotFound     = errors.New("short link not found")
	ErrShortLinkExhausted    = errors.New("short link attempts exhausted")
	ErrAlreadyFavorited      = errors.New("recipe already in favorites")
	ErrNotFavorited          = errors.New("recipe is not in favorites")
	ErrAlreadyInShoppingCart = errors.New("recipe already in shopping cart")
	ErrNotInShoppingCart     = errors.New("recipe is not in shopping cart")
)

const (
	// EmptyShoppingList is rendered instead of an empty file when the
	// cart has no recipes.
	EmptyShoppingList = "Shopping list is empty!"

	ShoppingCartFileName = "my_shopping_cart.txt"
	ShortLinkPrefix      = "s/"
)

type (
	IngredientAmountRequest struct {
		ID     string `json:"id" validate:"required,uuid"`
		Amount int    `json:"amount"`
	}

	RecipeRequest struct {
		Name        string                    `json:"name" validate:"required,max=256"`
		Text        string                    `json:"text" validate:"required"`
		CookingTime int                       `json:"cooking_time"`
		Image       string                    `json:"image"`
		Tags        []string                  `json:"tags"`
		Ingredients []IngredientAmountRequest `json:"ingredients"`
	}

	IngredientAmountResponse struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		MeasurementUnit string `json:"measurement_unit"`
		Amount          int    `json:"amount"`
	}

	RecipeResponse struct {
		ID                string                     `json:"id"`
		Tags              []TagResponse              `json:"tags"`
		Author            UserResponse               `json:"author"`
		Ingredients       []IngredientAmountResponse `json:"ingredients"`
		IsFavorited       bool                       `json:"is_favorited"`
		IsInShoppingCart  bool                       `json:"is_in_shopping_cart"`
		Name              string                     `json:"name"`
		Image             string                     `json:"image"`
		Text              string                     `json:"text"`
		CookingTime       int                        `json:"cooking_time"`
		PubDate           time.Time                  `json:"pub_date"`
	}

	// ShortRecipeResponse is the compact recipe payload used inside
	// favorites, cart and subscription responses.
	ShortRecipeResponse struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Image       string `json:"image"`
		CookingTime int    `json:"cooking_time"`
	}

	GetRecipesQuery struct {
		Page             int
		Limit            int
		AuthorID         string
		TagSlugs         []string
		IsFavorited      bool
		IsInShoppingCart bool
	}

	ShortLinkResponse struct {
		ShortLink string `json:"short-link"`
	}

	// ShoppingListItem is one aggregated line of the exported list:
	// the same ingredient across several cart recipes is summed into a
	// single (name, unit, total) row.
	ShoppingListItem struct {
		Name            string `json:"name"`
		MeasurementUnit string `json:"measurement_unit"`
		TotalAmount     int    `json:"total_amount"`
	}
)
