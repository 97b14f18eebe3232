package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TrailModel is the persisted header row for a generated story.
type TrailModel struct {
	bun.BaseModel `bun:"table:trails,alias:t"`

	ID          uuid.UUID   `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	RequestID   string      `bun:"request_id,notnull"`
	Title       string      `bun:"title,notnull"`
	Description string      `bun:"description"`
	Status      string      `bun:"status,notnull,default:'DRAFT'"`
	IsPublic    bool        `bun:"is_public,notnull,default:false"`
	Price       *float64    `bun:"price"`
	Tags        StringArray `bun:"tags,type:text[]"`
	Metadata    JSONBMap    `bun:"metadata,type:jsonb,default:'{}'"`
	CreatedAt   time.Time   `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull,default:current_timestamp"`

	Steps []*TrailStepModel `bun:"rel:has-many,join:id=trail_id"`
}

func (TrailModel) TableName() string { return "trails" }

// BeforeInsert sets defaults and timestamps on creation.
func (m *TrailModel) BeforeInsert(ctx any) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Metadata == nil {
		m.Metadata = make(JSONBMap)
	}
	return nil
}

// TrailStepModel is one finalized node attached to a TrailModel.
type TrailStepModel struct {
	bun.BaseModel `bun:"table:trail_steps,alias:ts"`

	ID          uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	TrailID     uuid.UUID `bun:"trail_id,notnull,type:uuid"`
	StepOrder   int       `bun:"step_order,notnull"`
	ContentData JSONBMap  `bun:"content_data,type:jsonb,notnull,default:'{}'"`
	Title       string    `bun:"title"`
	Description string    `bun:"description"`
	IsRequired  bool      `bun:"is_required,notnull,default:true"`
	Metadata    JSONBMap  `bun:"metadata,type:jsonb,default:'{}'"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`

	Trail *TrailModel `bun:"rel:belongs-to,join:trail_id=id"`
}

func (TrailStepModel) TableName() string { return "trail_steps" }

// BeforeInsert sets defaults and timestamps on creation.
func (m *TrailStepModel) BeforeInsert(ctx any) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ContentData == nil {
		m.ContentData = make(JSONBMap)
	}
	return nil
}
