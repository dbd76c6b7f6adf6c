package subrecord

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/eyeexam/internal/domain/examination"
	"github.com/ehr/eyeexam/internal/platform/lock"
	"github.com/ehr/eyeexam/pkg/pagination"
)

// Service is the Postgres-backed Resource for one kind.
type Service struct {
	kind   *Kind
	repo   Repository
	locker lock.Locker
	logger zerolog.Logger
}

func NewService(kind *Kind, repo Repository, locker lock.Locker, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Service{
		kind:   kind,
		repo:   repo,
		locker: locker,
		logger: logger.With().Str("kind", kind.Name).Logger(),
	}
}

func (s *Service) Kind() *Kind { return s.kind }

func (s *Service) List(ctx context.Context, visitID uuid.UUID, q ListQuery) (*Page, error) {
	p := pagination.New(q.Page, q.PerPage)
	items, total, err := s.repo.List(ctx, s.kind.Name, visitID, p.PerPage, p.Offset(), q.Search)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Record{}
	}
	return &Page{
		Items:    items,
		Page:     p.Page,
		PerPage:  p.PerPage,
		LastPage: p.LastPage(total),
		Total:    total,
	}, nil
}

func (s *Service) Get(ctx context.Context, visitID, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, s.kind.Name, visitID, id)
}

func (s *Service) Create(ctx context.Context, visitID uuid.UUID, payload Payload) (*Record, error) {
	if visitID == uuid.Nil {
		return nil, &examination.ValidationError{Kind: s.kind.Name, Fields: []string{"visit_id"}}
	}
	if err := s.kind.Validate(payload); err != nil {
		return nil, err
	}
	unlock, err := s.acquire(ctx, visitID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec := &Record{
		VisitID:   visitID,
		Kind:      s.kind.Name,
		CreatedBy: CreatorFromContext(ctx),
		Payload:   s.kind.Canonical(payload),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info().Str("visit_id", visitID.String()).Str("id", rec.ID.String()).Msg("sub-record created")
	return rec, nil
}

// Update merges patch over the stored payload and revalidates the result.
func (s *Service) Update(ctx context.Context, visitID, id uuid.UUID, patch Payload) (*Record, error) {
	unlock, err := s.acquire(ctx, visitID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var updated Record
	err = s.inTx(ctx, func(ctx context.Context) error {
		rec, err := s.repo.GetByID(ctx, s.kind.Name, visitID, id)
		if err != nil {
			return err
		}
		merged := s.kind.Merge(rec.Payload, patch)
		if err := s.kind.Validate(merged); err != nil {
			return err
		}
		updated = *rec
		updated.Payload = merged
		return s.repo.Update(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("visit_id", visitID.String()).Str("id", id.String()).Msg("sub-record updated")
	return &updated, nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t, ok := s.repo.(Transactor); ok {
		return t.InTx(ctx, fn)
	}
	return fn(ctx)
}

func (s *Service) Delete(ctx context.Context, visitID, id uuid.UUID) error {
	unlock, err := s.acquire(ctx, visitID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.Delete(ctx, s.kind.Name, visitID, id); err != nil {
		return err
	}
	s.logger.Info().Str("visit_id", visitID.String()).Str("id", id.String()).Msg("sub-record deleted")
	return nil
}

// Form reads an eye-pair record in the flat edit-form shape.
func (s *Service) Form(ctx context.Context, visitID, id uuid.UUID) (examination.FlatRecord, error) {
	if len(s.kind.EyeFields) == 0 {
		return nil, fmt.Errorf("%s has no eye-pair form", s.kind.Name)
	}
	rec, err := s.repo.GetByID(ctx, s.kind.Name, visitID, id)
	if err != nil {
		return nil, err
	}
	nested := examination.EyePairsFromPayload(rec.Payload, s.kind.EyeFields)
	return examination.Flatten(nested, s.kind.EyeFields), nil
}

// SaveForm nests a flat edit form and stores it over the record's eye fields.
func (s *Service) SaveForm(ctx context.Context, visitID, id uuid.UUID, form examination.FlatRecord) (*Record, error) {
	if len(s.kind.EyeFields) == 0 {
		return nil, fmt.Errorf("%s has no eye-pair form", s.kind.Name)
	}
	nested := examination.Nest(form, s.kind.EyeFields)
	return s.Update(ctx, visitID, id, Payload(nested.Payload()))
}

func (s *Service) acquire(ctx context.Context, visitID uuid.UUID) (func(), error) {
	release, err := s.locker.TryLock(ctx, lock.Key(s.kind.Name, visitID.String()))
	if err != nil {
		return nil, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("visit_id", visitID.String()).Msg("release mutation lock")
		}
	}, nil
}
