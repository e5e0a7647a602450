package subscription

import (
	"context"
	"errors"
	"foodgram-backend/domain"
	"foodgram-backend/entities"
	"foodgram-backend/pkg/recipe"
	"foodgram-backend/pkg/user"

	"gorm.io/gorm"
)

type (
	SubscriptionService interface {
		Subscribe(ctx context.Context, userID, targetID string, recipesLimit int) (domain.SubscriptionResponse, error)
		Unsubscribe(ctx context.Context, userID, targetID string) error
		GetSubscriptions(ctx context.Context, userID string, page, limit, recipesLimit int) ([]domain.SubscriptionResponse, int64, error)
	}

	subscriptionService struct {
		userRepository   user.UserRepository
		recipeRepository recipe.RecipeRepository
	}
)

func NewSubscriptionService(userRepository user.UserRepository, recipeRepository recipe.RecipeRepository) SubscriptionService {
	return &subscriptionService{
		userRepository:   userRepository,
		recipeRepository: recipeRepository,
	}
}

func (s *subscriptionService) getTargetUser(ctx context.Context, targetID string) (*entities.User, error) {
	target, err := s.userRepository.GetUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return target, nil
}

func (s *subscriptionService) toSubscriptionResponse(ctx context.Context, following *entities.User, recipesLimit int) domain.SubscriptionResponse {
	recipes, err := s.recipeRepository.GetRecipesByAuthor(ctx, following.ID.String(), recipesLimit)
	if err != nil {
		recipes = nil
	}
	count, err := s.recipeRepository.CountRecipesByAuthor(ctx, following.ID.String())
	if err != nil {
		count = int64(len(recipes))
	}

	shortRecipes := make([]domain.ShortRecipeResponse, 0, len(recipes))
	for _, r := range recipes {
		shortRecipes = append(shortRecipes, domain.ShortRecipeResponse{
			ID:          r.ID.String(),
			Name:        r.Name,
			Image:       r.ImageURL,
			CookingTime: r.CookingTime,
		})
	}

	return domain.SubscriptionResponse{
		ID:           following.ID.String(),
		Email:        following.Email,
		Username:     following.Username,
		FirstName:    following.FirstName,
		LastName:     following.LastName,
		IsSubscribed: true,
		Avatar:       following.AvatarURL,
		Recipes:      shortRecipes,
		RecipesCount: count,
	}
}

func (s *subscriptionService) Subscribe(ctx context.Context, userID, targetID string, recipesLimit int) (domain.SubscriptionResponse, error) {
	if userID == targetID {
		validationErr := domain.NewValidationError()
		validationErr.Add("following", "subscribing to yourself is not allowed")
		return domain.SubscriptionResponse{}, validationErr
	}

	target, err := s.getTargetUser(ctx, targetID)
	if err != nil {
		return domain.SubscriptionResponse{}, err
	}

	if err := s.userRepository.Subscribe(ctx, userID, targetID); err != nil {
		return domain.SubscriptionResponse{}, err
	}

	return s.toSubscriptionResponse(ctx, target, recipesLimit), nil
}

func (s *subscriptionService) Unsubscribe(ctx context.Context, userID, targetID string) error {
	if _, err := s.getTargetUser(ctx, targetID); err != nil {
		return err
	}
	return s.userRepository.Unsubscribe(ctx, userID, targetID)
}

func (s *subscriptionService) GetSubscriptions(ctx context.Context, userID string, page, limit, recipesLimit int) ([]domain.SubscriptionResponse, int64, error) {
	followed, count, err := s.userRepository.GetFollowedUsers(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	result := make([]domain.SubscriptionResponse, 0, len(followed))
	for _, following := range followed {
		result = append(result, s.toSubscriptionResponse(ctx, following, recipesLimit))
	}
	return result, count, nil
}
