package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/storyforge/storyforge/pkg/story"
)

// TrailRepository persists assembled Trails and their TrailSteps.
type TrailRepository interface {
	Create(ctx context.Context, requestID string, trail *story.Trail, steps []story.TrailStep) (uuid.UUID, error)
	GetByRequestID(ctx context.Context, requestID string) (*story.Trail, []story.TrailStep, error)
}

// bunTrailRepository implements TrailRepository using Bun ORM, grounded
// on the teacher's WorkflowRepository: one transaction per Create that
// inserts the header row then its children.
type bunTrailRepository struct {
	db *bun.DB
}

// NewTrailRepository builds a Bun-backed TrailRepository.
func NewTrailRepository(db *bun.DB) TrailRepository {
	return &bunTrailRepository{db: db}
}

func (r *bunTrailRepository) Create(ctx context.Context, requestID string, trail *story.Trail, steps []story.TrailStep) (uuid.UUID, error) {
	model, err := trailToStorage(requestID, trail, steps)
	if err != nil {
		return uuid.Nil, err
	}

	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(model).Exec(ctx); err != nil {
			return fmt.Errorf("insert trail: %w", err)
		}

		for _, step := range model.Steps {
			step.TrailID = model.ID
		}
		if len(model.Steps) > 0 {
			if _, err := tx.NewInsert().Model(&model.Steps).Exec(ctx); err != nil {
				return fmt.Errorf("insert trail steps: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return model.ID, nil
}

func (r *bunTrailRepository) GetByRequestID(ctx context.Context, requestID string) (*story.Trail, []story.TrailStep, error) {
	model := new(TrailModel)
	err := r.db.NewSelect().
		Model(model).
		Relation("Steps", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("step_order ASC")
		}).
		Where("request_id = ?", requestID).
		Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("select trail by request id %q: %w", requestID, err)
	}
	return trailFromStorage(model)
}
