package subrecord

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores sub-records of every kind. Every call is scoped by kind
// and visit; an id outside that scope reads as not found.
type Repository interface {
	List(ctx context.Context, kind string, visitID uuid.UUID, limit, offset int, search string) ([]*Record, int, error)
	GetByID(ctx context.Context, kind string, visitID, id uuid.UUID) (*Record, error)
	Create(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, kind string, visitID, id uuid.UUID) error
}

// Transactor is implemented by repositories that can run several calls in
// one transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Resource is the visit-scoped contract one kind exposes to callers. Service
// serves it from Postgres, Remote from another backend over HTTP.
type Resource interface {
	Kind() *Kind
	List(ctx context.Context, visitID uuid.UUID, q ListQuery) (*Page, error)
	Create(ctx context.Context, visitID uuid.UUID, payload Payload) (*Record, error)
	Update(ctx context.Context, visitID, id uuid.UUID, patch Payload) (*Record, error)
	Delete(ctx context.Context, visitID, id uuid.UUID) error
}

type creatorKey struct{}

// WithCreator attaches the creator reference stamped on new records.
func WithCreator(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, creatorKey{}, ref)
}

// CreatorFromContext returns the creator reference, or "".
func CreatorFromContext(ctx context.Context) string {
	ref, _ := ctx.Value(creatorKey{}).(string)
	return ref
}
