package storage

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/DobryySoul/meshsync/model"
)

type memoryStore struct {
	mu    sync.RWMutex
	users map[string]model.User
	plans map[string]model.MealPlan
}

// NewMemoryStore returns a Store that keeps records in process memory.
func NewMemoryStore() Store {
	return &memoryStore{
		users: make(map[string]model.User),
		plans: make(map[string]model.MealPlan),
	}
}

func (s *memoryStore) GetUser(ctx context.Context, id string) (model.User, error) {
	return get(ctx, &s.mu, s.users, id)
}

func (s *memoryStore) InsertUser(ctx context.Context, user model.User) error {
	return insert(ctx, &s.mu, s.users, user.ID, user)
}

func (s *memoryStore) UpdateUser(ctx context.Context, user model.User) error {
	return update(ctx, &s.mu, s.users, user.ID, user)
}

func (s *memoryStore) Users(ctx context.Context) ([]model.User, error) {
	return list(ctx, &s.mu, s.users)
}

func (s *memoryStore) GetMealPlan(ctx context.Context, id string) (model.MealPlan, error) {
	return get(ctx, &s.mu, s.plans, id)
}

func (s *memoryStore) InsertMealPlan(ctx context.Context, plan model.MealPlan) error {
	plan.Meals = maps.Clone(plan.Meals)
	return insert(ctx, &s.mu, s.plans, plan.ID, plan)
}

func (s *memoryStore) UpdateMealPlan(ctx context.Context, plan model.MealPlan) error {
	plan.Meals = maps.Clone(plan.Meals)
	return update(ctx, &s.mu, s.plans, plan.ID, plan)
}

func (s *memoryStore) MealPlans(ctx context.Context) ([]model.MealPlan, error) {
	return list(ctx, &s.mu, s.plans)
}

func (s *memoryStore) Close() error {
	return nil
}

func get[R any](ctx context.Context, mu *sync.RWMutex, m map[string]R, id string) (R, error) {
	var zero R
	if err := ctxErr(ctx); err != nil {
		return zero, err
	}
	mu.RLock()
	record, ok := m[id]
	mu.RUnlock()
	if !ok {
		return zero, ErrNotFound
	}
	return record, nil
}

func insert[R any](ctx context.Context, mu *sync.RWMutex, m map[string]R, id string, record R) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := m[id]; ok {
		return fmt.Errorf("storage: insert %q: already exists", id)
	}
	m[id] = record
	return nil
}

func update[R any](ctx context.Context, mu *sync.RWMutex, m map[string]R, id string, record R) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := m[id]; !ok {
		return ErrNotFound
	}
	m[id] = record
	return nil
}

func list[R any](ctx context.Context, mu *sync.RWMutex, m map[string]R) ([]R, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	mu.RLock()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]R, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	mu.RUnlock()
	return out, nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
