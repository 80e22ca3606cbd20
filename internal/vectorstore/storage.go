// Package vectorstore defines the in-memory index and the durable mirror
// that back plan search.
package vectorstore

import (
	"context"

	"planrag/internal/domain"
)

// Index holds chunk entities in memory and ranks them against a query.
type Index interface {
	Insert(entity domain.ChunkEntity)
	InsertMany(entities []domain.ChunkEntity)
	Query(ctx context.Context, q domain.Query) ([]domain.QueryResult, error)
	GetByPlanID(planID string, k int) []domain.ChunkEntity
	DeleteByPlanID(planID string) int
	Clear()
	Count() int
	GetAll() []domain.ChunkEntity
}

// Store persists plans and their chunk entities across runs. An empty
// planID passed to LoadEntities loads every plan.
type Store interface {
	SavePlan(ctx context.Context, plan domain.Plan) error
	GetPlan(ctx context.Context, id string) (domain.Plan, error)
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	SaveEntities(ctx context.Context, entities []domain.ChunkEntity) error
	LoadEntities(ctx context.Context, planID string) ([]domain.ChunkEntity, error)
	DeletePlan(ctx context.Context, id string) error
	Close() error
}
