package subrecord

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

// Runs against a real database when EYEEXAM_TEST_DATABASE_URL points at a
// schema with migrations applied.
func newPGRepo(t *testing.T) Repository {
	t.Helper()
	url := os.Getenv("EYEEXAM_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("EYEEXAM_TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewRepo(pool)
}

func TestRepoPG_Lifecycle(t *testing.T) {
	repo := newPGRepo(t)
	ctx := context.Background()
	visit := uuid.New()

	rec := &Record{VisitID: visit, Kind: "complaint", CreatedBy: "test", Payload: Payload{"chief_complaint": "Haloes"}}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &Record{VisitID: visit, Kind: "complaint", Payload: Payload{"chief_complaint": "Watering"}}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, total, err := repo.List(ctx, "complaint", visit, 10, 0, "")
	if err != nil || total != 2 || len(items) != 2 {
		t.Fatalf("list: total=%d items=%d err=%v", total, len(items), err)
	}
	if Latest(items) != nil && items[0].ID != Latest(items).ID {
		t.Error("expected list ordered newest first")
	}
	if _, total, _ := repo.List(ctx, "complaint", visit, 10, 0, "haloes"); total != 1 {
		t.Errorf("search total = %d, want 1", total)
	}

	if _, err := repo.GetByID(ctx, "complaint", uuid.New(), rec.ID); !examination.IsNotFound(err) {
		t.Errorf("expected NotFoundError outside visit, got %v", err)
	}
	rec.Payload["complaint_duration"] = "1 day"
	if err := repo.Update(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetByID(ctx, "complaint", visit, rec.ID)
	if err != nil || got.Payload["complaint_duration"] != "1 day" {
		t.Errorf("update not persisted: %+v %v", got, err)
	}

	for _, r := range []*Record{rec, second} {
		if err := repo.Delete(ctx, "complaint", visit, r.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if err := repo.Delete(ctx, "complaint", visit, rec.ID); !examination.IsNotFound(err) {
		t.Errorf("expected NotFoundError on second delete, got %v", err)
	}
}

func TestRepoPG_InTxRollsBack(t *testing.T) {
	repo := newPGRepo(t)
	ctx := context.Background()
	visit := uuid.New()

	boom := &examination.ValidationError{Kind: "complaint", Fields: []string{"chief_complaint"}}
	err := repo.(Transactor).InTx(ctx, func(ctx context.Context) error {
		if err := repo.Create(ctx, &Record{VisitID: visit, Kind: "complaint", Payload: Payload{"chief_complaint": "Glare"}}); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected fn error back, got %v", err)
	}
	if _, total, _ := repo.List(ctx, "complaint", visit, 10, 0, ""); total != 0 {
		t.Errorf("expected rollback to discard the insert, found %d", total)
	}
}
