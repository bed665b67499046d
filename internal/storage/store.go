package storage

import (
	"context"
	"errors"

	"github.com/DobryySoul/meshsync/model"
)

var ErrNotFound = errors.New("storage: record not found")

// Store persists replicated records keyed by identifier.
// Implementations must be safe for concurrent use; the engine performs a
// plain Get followed by Insert or Update and adds no locking of its own.
type Store interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	InsertUser(ctx context.Context, user model.User) error
	UpdateUser(ctx context.Context, user model.User) error
	// Users returns every stored user.
	Users(ctx context.Context) ([]model.User, error)

	GetMealPlan(ctx context.Context, id string) (model.MealPlan, error)
	InsertMealPlan(ctx context.Context, plan model.MealPlan) error
	UpdateMealPlan(ctx context.Context, plan model.MealPlan) error
	// MealPlans returns every stored meal plan.
	MealPlans(ctx context.Context) ([]model.MealPlan, error)

	Close() error
}
