package subrecord

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

// ErrInFlight is returned when a mutation is started while another one from
// the same Browser has not resolved.
var ErrInFlight = errors.New("subrecord: mutation already in flight")

const DefaultSearchDebounce = 500 * time.Millisecond

// View is what a list screen shows after the latest load attempt.
type View struct {
	// Page is the last page that loaded successfully.
	Page *Page
	// Err is the most recent load failure, cleared by the next success.
	Err error
	// FirstLoadFailed means no page has ever loaded; Err replaces the list.
	FirstLoadFailed bool
}

// Browser drives paged, searchable history of one kind for one visit.
type Browser struct {
	res      Resource
	visitID  uuid.UUID
	debounce time.Duration
	onChange func(View)

	mu     sync.Mutex
	query  ListQuery
	page   *Page
	err    error
	seq    uint64
	busy   bool
	timer  *time.Timer
	loaded bool
}

type BrowserOption func(*Browser)

func WithDebounce(d time.Duration) BrowserOption {
	return func(b *Browser) { b.debounce = d }
}

func WithPerPage(n int) BrowserOption {
	return func(b *Browser) { b.query.PerPage = n }
}

// OnChange is called after every load attempt settles.
func OnChange(fn func(View)) BrowserOption {
	return func(b *Browser) { b.onChange = fn }
}

func NewBrowser(res Resource, visitID uuid.UUID, opts ...BrowserOption) *Browser {
	b := &Browser{
		res:      res,
		visitID:  visitID,
		debounce: DefaultSearchDebounce,
		query:    ListQuery{Page: 1},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// View returns the current state.
func (b *Browser) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

func (b *Browser) viewLocked() View {
	return View{Page: b.page, Err: b.err, FirstLoadFailed: b.err != nil && !b.loaded}
}

// Load fetches the current page. A failure keeps the previous page.
func (b *Browser) Load(ctx context.Context) error {
	b.mu.Lock()
	b.seq++
	seq, q := b.seq, b.query
	b.mu.Unlock()

	page, err := b.res.List(ctx, b.visitID, q)

	b.mu.Lock()
	if seq != b.seq {
		// a newer load superseded this one
		b.mu.Unlock()
		return err
	}
	if err != nil {
		b.err = err
	} else {
		b.page, b.err, b.loaded = page, nil, true
	}
	view := b.viewLocked()
	b.mu.Unlock()

	if b.onChange != nil {
		b.onChange(view)
	}
	return err
}

// Retry reloads after an error state.
func (b *Browser) Retry(ctx context.Context) error { return b.Load(ctx) }

// GoTo loads a 1-based page.
func (b *Browser) GoTo(ctx context.Context, page int) error {
	b.mu.Lock()
	b.query.Page = page
	b.mu.Unlock()
	return b.Load(ctx)
}

// Search schedules a load of page 1 for term once input has been quiet for
// the debounce period. Each call restarts the wait.
func (b *Browser) Search(ctx context.Context, term string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query.Search = term
	b.query.Page = 1
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, func() { _ = b.Load(ctx) })
}

// Stop cancels a pending debounced search.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Create submits payload. The caller's map is left untouched so the form
// survives a failed submit.
func (b *Browser) Create(ctx context.Context, payload Payload) (*Record, error) {
	var rec *Record
	err := b.mutate(ctx, func() error {
		var err error
		rec, err = b.res.Create(ctx, b.visitID, payload.Clone())
		return err
	})
	return rec, err
}

func (b *Browser) Update(ctx context.Context, id uuid.UUID, patch Payload) (*Record, error) {
	var rec *Record
	err := b.mutate(ctx, func() error {
		var err error
		rec, err = b.res.Update(ctx, b.visitID, id, patch.Clone())
		return err
	})
	return rec, err
}

func (b *Browser) Delete(ctx context.Context, id uuid.UUID) error {
	return b.mutate(ctx, func() error {
		return b.res.Delete(ctx, b.visitID, id)
	})
}

// mutate runs fn unless another mutation is in flight, then refreshes the
// list on success or on a stale id.
func (b *Browser) mutate(ctx context.Context, fn func() error) error {
	b.mu.Lock()
	if b.busy {
		b.mu.Unlock()
		return ErrInFlight
	}
	b.busy = true
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	b.busy = false
	b.mu.Unlock()

	if err == nil || examination.IsNotFound(err) {
		_ = b.Load(ctx)
	}
	return err
}
