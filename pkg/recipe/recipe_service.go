package recipe

import (
	"context"
	"errors"
	"fmt"
	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/internal/utils/storage"
	"foodgram-backend/pkg/ingredient"
	"foodgram-backend/pkg/tag"
	"foodgram-backend/pkg/user"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type (
	RecipeService interface {
		CreateRecipe(ctx context.Context, req domain.RecipeRequest, authorID string) (domain.RecipeResponse, error)
		UpdateRecipe(ctx context.Context, recipeID string, req domain.RecipeRequest, actorID, actorRole string) (domain.RecipeResponse, error)
		DeleteRecipe(ctx context.Context, recipeID, actorID, actorRole string) error
		GetRecipes(ctx context.Context, query domain.GetRecipesQuery, viewerID string) ([]domain.RecipeResponse, int64, error)
		GetRecipeDetail(ctx context.Context, recipeID, viewerID string) (domain.RecipeResponse, error)
		GetShortLink(ctx context.Context, recipeID, baseURL string) (domain.ShortLinkResponse, error)
		ResolveShortLink(ctx context.Context, shortLink string) (string, error)

		AddFavorite(ctx context.Context, recipeID, userID string) (domain.ShortRecipeResponse, error)
		RemoveFavorite(ctx context.Context, recipeID, userID string) error
		AddToShoppingCart(ctx context.Context, recipeID, userID string) (domain.ShortRecipeResponse, error)
		RemoveFromShoppingCart(ctx context.Context, recipeID, userID string) error
		DownloadShoppingCart(ctx context.Context, userID string) (string, error)
	}

	recipeService struct {
		recipeRepository     RecipeRepository
		tagRepository        tag.TagRepository
		ingredientRepository ingredient.IngredientRepository
		userRepository       user.UserRepository
		s3                   storage.AwsS3
	}
)

func NewRecipeService(
	recipeRepository RecipeRepository,
	tagRepository tag.TagRepository,
	ingredientRepository ingredient.IngredientRepository,
	userRepository user.UserRepository,
	s3 storage.AwsS3,
) RecipeService {
	return &recipeService{
		recipeRepository:     recipeRepository,
		tagRepository:        tagRepository,
		ingredientRepository: ingredientRepository,
		userRepository:       userRepository,
		s3:                   s3,
	}
}

// hasDuplicates reports whether the ordered id sequence contains the same
// value more than once, regardless of position.
func hasDuplicates(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen) != len(ids)
}

// validateRecipeRequest evaluates every check independently and reports
// all offending fields together.
func validateRecipeRequest(req domain.RecipeRequest) *domain.ValidationError {
	validationErr := domain.NewValidationError()

	if req.Image == "" {
		validationErr.Add("image", "image is required")
	}

	if req.CookingTime < entities.MinCookingTime || req.CookingTime > entities.MaxCookingTime {
		validationErr.Add("cooking_time", fmt.Sprintf(
			"cooking time must be between %d and %d", entities.MinCookingTime, entities.MaxCookingTime))
	}

	if len(req.Tags) == 0 {
		validationErr.Add("tags", "add at least one tag")
	} else if hasDuplicates(req.Tags) {
		validationErr.Add("tags", "check tags for duplicates")
	}

	if len(req.Ingredients) == 0 {
		validationErr.Add("ingredients", "add at least one ingredient")
	} else {
		ingredientIDs := make([]string, 0, len(req.Ingredients))
		for _, entry := range req.Ingredients {
			ingredientIDs = append(ingredientIDs, entry.ID)
			if entry.Amount < entities.MinAmount || entry.Amount > entities.MaxAmount {
				validationErr.Add("ingredients", fmt.Sprintf(
					"amount must be between %d and %d", entities.MinAmount, entities.MaxAmount))
			}
		}
		if hasDuplicates(ingredientIDs) {
			validationErr.Add("ingredients", "check ingredients for duplicates")
		}
	}

	return validationErr
}

// resolveAssociations loads the referenced tags and ingredients, failing
// with a not-found error when any id does not exist.
func (s *recipeService) resolveAssociations(ctx context.Context, req domain.RecipeRequest) ([]*entities.Tag, []*entities.IngredientInRecipe, error) {
	tags, err := s.tagRepository.GetTagsByIDs(ctx, req.Tags)
	if err != nil {
		return nil, nil, err
	}
	if len(tags) != len(req.Tags) {
		return nil, nil, domain.ErrTagNotFound
	}

	ingredientIDs := make([]string, 0, len(req.Ingredients))
	for _, entry := range req.Ingredients {
		ingredientIDs = append(ingredientIDs, entry.ID)
	}
	ingredients, err := s.ingredientRepository.GetIngredientsByIDs(ctx, ingredientIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(ingredients) != len(req.Ingredients) {
		return nil, nil, domain.ErrIngredientNotFound
	}

	rows := make([]*entities.IngredientInRecipe, 0, len(req.Ingredients))
	for _, entry := range req.Ingredients {
		ingredientID, err := uuid.Parse(entry.ID)
		if err != nil {
			return nil, nil, domain.ErrParseUUID
		}
		rows = append(rows, &entities.IngredientInRecipe{
			IngredientID: ingredientID,
			Amount:       entry.Amount,
		})
	}
	return tags, rows, nil
}

func (s *recipeService) uploadImage(recipeID string, image string) (string, error) {
	// Images already stored by us arrive back unchanged on update.
	if !strings.HasPrefix(image, "data:") {
		return image, nil
	}
	fileName := fmt.Sprintf("recipe-%s", recipeID)
	objectKey, err := s.s3.UploadBase64(fileName, image, "recipes", storage.AllowImage...)
	if err != nil {
		return "", err
	}
	return s.s3.GetPublicLinkKey(objectKey), nil
}

func canModifyRecipe(actorID, actorRole string, recipe *entities.Recipe) bool {
	return actorRole == entities.RoleAdmin || recipe.AuthorID.String() == actorID
}

func (s *recipeService) CreateRecipe(ctx context.Context, req domain.RecipeRequest, authorID string) (domain.RecipeResponse, error) {
	if err := validateRecipeRequest(req).ErrOrNil(); err != nil {
		return domain.RecipeResponse{}, err
	}

	tags, rows, err := s.resolveAssociations(ctx, req)
	if err != nil {
		return domain.RecipeResponse{}, err
	}

	authorUUID, err := uuid.Parse(authorID)
	if err != nil {
		return domain.RecipeResponse{}, domain.ErrParseUUID
	}

	recipe := &entities.Recipe{
		ID:          uuid.New(),
		AuthorID:    authorUUID,
		Name:        req.Name,
		Text:        req.Text,
		CookingTime: req.CookingTime,
	}

	imageURL, err := s.uploadImage(recipe.ID.String(), req.Image)
	if err != nil {
		return domain.RecipeResponse{}, err
	}
	recipe.ImageURL = imageURL

	if err := s.recipeRepository.CreateRecipe(ctx, recipe, tags, rows); err != nil {
		return domain.RecipeResponse{}, err
	}

	return s.GetRecipeDetail(ctx, recipe.ID.String(), authorID)
}

func (s *recipeService) UpdateRecipe(ctx context.Context, recipeID string, req domain.RecipeRequest, actorID, actorRole string) (domain.RecipeResponse, error) {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RecipeResponse{}, domain.ErrRecipeNotFound
		}
		return domain.RecipeResponse{}, err
	}

	if !canModifyRecipe(actorID, actorRole, recipe) {
		return domain.RecipeResponse{}, domain.ErrUserNotAllowed
	}

	if err := validateRecipeRequest(req).ErrOrNil(); err != nil {
		return domain.RecipeResponse{}, err
	}

	tags, rows, err := s.resolveAssociations(ctx, req)
	if err != nil {
		return domain.RecipeResponse{}, err
	}

	imageURL, err := s.uploadImage(recipe.ID.String(), req.Image)
	if err != nil {
		return domain.RecipeResponse{}, err
	}

	recipe.Name = req.Name
	recipe.Text = req.Text
	recipe.CookingTime = req.CookingTime
	recipe.ImageURL = imageURL
	recipe.Tags = nil
	recipe.Ingredients = nil

	if err := s.recipeRepository.UpdateRecipe(ctx, recipe, tags, rows); err != nil {
		return domain.RecipeResponse{}, err
	}

	return s.GetRecipeDetail(ctx, recipe.ID.String(), actorID)
}

func (s *recipeService) DeleteRecipe(ctx context.Context, recipeID, actorID, actorRole string) error {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrRecipeNotFound
		}
		return err
	}

	if !canModifyRecipe(actorID, actorRole, recipe) {
		return domain.ErrUserNotAllowed
	}

	if recipe.ImageURL != "" {
		objectKey := s.s3.GetObjectKeyFromLink(recipe.ImageURL)
		if objectKey != "" {
			_ = s.s3.DeleteFile(objectKey)
		}
	}

	return s.recipeRepository.DeleteRecipe(ctx, recipeID)
}

func (s *recipeService) toUserResponse(ctx context.Context, author *entities.User, viewerID string) domain.UserResponse {
	response := domain.UserResponse{}
	if author == nil {
		return response
	}
	response = domain.UserResponse{
		ID:        author.ID.String(),
		Email:     author.Email,
		Username:  author.Username,
		FirstName: author.FirstName,
		LastName:  author.LastName,
		Avatar:    author.AvatarURL,
	}
	if viewerID != "" {
		isSubscribed, err := s.userRepository.IsSubscribed(ctx, viewerID, author.ID.String())
		if err == nil {
			response.IsSubscribed = isSubscribed
		}
	}
	return response
}

func (s *recipeService) toRecipeResponse(ctx context.Context, recipe *entities.Recipe, viewerID string) domain.RecipeResponse {
	tags := make([]domain.TagResponse, 0, len(recipe.Tags))
	for _, t := range recipe.Tags {
		tags = append(tags, domain.TagResponse{
			ID:   t.ID.String(),
			Name: t.Name,
			Slug: t.Slug,
		})
	}

	ingredients := make([]domain.IngredientAmountResponse, 0, len(recipe.Ingredients))
	for _, row := range recipe.Ingredients {
		response := domain.IngredientAmountResponse{
			ID:     row.IngredientID.String(),
			Amount: row.Amount,
		}
		if row.Ingredient != nil {
			response.Name = row.Ingredient.Name
			response.MeasurementUnit = row.Ingredient.MeasurementUnit
		}
		ingredients = append(ingredients, response)
	}

	isFavorited := false
	isInShoppingCart := false
	if viewerID != "" {
		isFavorited, _ = s.recipeRepository.IsFavorited(ctx, viewerID, recipe.ID.String())
		isInShoppingCart, _ = s.recipeRepository.IsInShoppingCart(ctx, viewerID, recipe.ID.String())
	}

	return domain.RecipeResponse{
		ID:               recipe.ID.String(),
		Tags:             tags,
		Author:           s.toUserResponse(ctx, recipe.Author, viewerID),
		Ingredients:      ingredients,
		IsFavorited:      isFavorited,
		IsInShoppingCart: isInShoppingCart,
		Name:             recipe.Name,
		Image:            recipe.ImageURL,
		Text:             recipe.Text,
		CookingTime:      recipe.CookingTime,
		PubDate:          recipe.PubDate,
	}
}

func (s *recipeService) GetRecipes(ctx context.Context, query domain.GetRecipesQuery, viewerID string) ([]domain.RecipeResponse, int64, error) {
	recipes, count, err := s.recipeRepository.GetRecipes(ctx, query, viewerID)
	if err != nil {
		return nil, 0, err
	}

	result := make([]domain.RecipeResponse, 0, len(recipes))
	for _, recipe := range recipes {
		result = append(result, s.toRecipeResponse(ctx, recipe, viewerID))
	}
	return result, count, nil
}

func (s *recipeService) GetRecipeDetail(ctx context.Context, recipeID, viewerID string) (domain.RecipeResponse, error) {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RecipeResponse{}, domain.ErrRecipeNotFound
		}
		return domain.RecipeResponse{}, err
	}
	return s.toRecipeResponse(ctx, recipe, viewerID), nil
}

func (s *recipeService) GetShortLink(ctx context.Context, recipeID, baseURL string) (domain.ShortLinkResponse, error) {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ShortLinkResponse{}, domain.ErrRecipeNotFound
		}
		return domain.ShortLinkResponse{}, err
	}
	return domain.ShortLinkResponse{
		ShortLink: fmt.Sprintf("%s/%s%s", strings.TrimSuffix(baseURL, "/"), domain.ShortLinkPrefix, recipe.ShortLink),
	}, nil
}

func (s *recipeService) ResolveShortLink(ctx context.Context, shortLink string) (string, error) {
	recipe, err := s.recipeRepository.GetRecipeByShortLink(ctx, shortLink)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrShortLinkNotFound
		}
		return "", err
	}
	return recipe.ID.String(), nil
}

func toShortRecipeResponse(recipe *entities.Recipe) domain.ShortRecipeResponse {
	return domain.ShortRecipeResponse{
		ID:          recipe.ID.String(),
		Name:        recipe.Name,
		Image:       recipe.ImageURL,
		CookingTime: recipe.CookingTime,
	}
}

func (s *recipeService) getExistingRecipe(ctx context.Context, recipeID string) (*entities.Recipe, error) {
	recipe, err := s.recipeRepository.GetRecipeByID(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecipeNotFound
		}
		return nil, err
	}
	return recipe, nil
}

func (s *recipeService) AddFavorite(ctx context.Context, recipeID, userID string) (domain.ShortRecipeResponse, error) {
	recipe, err := s.getExistingRecipe(ctx, recipeID)
	if err != nil {
		return domain.ShortRecipeResponse{}, err
	}
	if err := s.recipeRepository.AddFavorite(ctx, userID, recipeID); err != nil {
		return domain.ShortRecipeResponse{}, err
	}
	return toShortRecipeResponse(recipe), nil
}

func (s *recipeService) RemoveFavorite(ctx context.Context, recipeID, userID string) error {
	if _, err := s.getExistingRecipe(ctx, recipeID); err != nil {
		return err
	}
	return s.recipeRepository.RemoveFavorite(ctx, userID, recipeID)
}

func (s *recipeService) AddToShoppingCart(ctx context.Context, recipeID, userID string) (domain.ShortRecipeResponse, error) {
	recipe, err := s.getExistingRecipe(ctx, recipeID)
	if err != nil {
		return domain.ShortRecipeResponse{}, err
	}
	if err := s.recipeRepository.AddToShoppingCart(ctx, userID, recipeID); err != nil {
		return domain.ShortRecipeResponse{}, err
	}
	return toShortRecipeResponse(recipe), nil
}

func (s *recipeService) RemoveFromShoppingCart(ctx context.Context, recipeID, userID string) error {
	if _, err := s.getExistingRecipe(ctx, recipeID); err != nil {
		return err
	}
	return s.recipeRepository.RemoveFromShoppingCart(ctx, userID, recipeID)
}

// DownloadShoppingCart renders the aggregated list as one line per
// ingredient. An empty cart yields a human-readable placeholder instead
// of an empty file.
func (s *recipeService) DownloadShoppingCart(ctx context.Context, userID string) (string, error) {
	items, err := s.recipeRepository.GetShoppingList(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return domain.EmptyShoppingList, nil
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("• %s - %d %s", item.Name, item.TotalAmount, item.MeasurementUnit))
	}
	return strings.Join(lines, "\n"), nil
}
