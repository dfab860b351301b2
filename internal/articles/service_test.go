package articles

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/shared"
)

type memoryRepo struct {
	nextID int64
	items  map[int64]*Article

	// staleOnce makes the next UpdateStatus lose the optimistic race
	// while mutating the row, to exercise the retry path.
	staleOnce  bool
	staleShift authz.Status
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, items: make(map[int64]*Article)}
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Article, int, error) {
	var out []Article
	for _, a := range m.items {
		if filter.OwnerID != 0 && a.UserID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && string(a.Status) != filter.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) FindByID(ctx context.Context, id int64) (*Article, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *memoryRepo) Create(ctx context.Context, article *Article) error {
	article.ID = m.nextID
	m.nextID++
	article.CreatedAt = time.Now()
	article.UpdatedAt = article.CreatedAt
	clone := *article
	m.items[article.ID] = &clone
	return nil
}

func (m *memoryRepo) Update(ctx context.Context, article *Article) error {
	if _, ok := m.items[article.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *article
	m.items[article.ID] = &clone
	return nil
}

func (m *memoryRepo) UpdateStatus(ctx context.Context, id int64, expected, target authz.Status, publishedAt *time.Time) error {
	a, ok := m.items[id]
	if !ok {
		return ErrStale
	}
	if m.staleOnce {
		m.staleOnce = false
		a.Status = m.staleShift
		return ErrStale
	}
	if a.Status != expected {
		return ErrStale
	}
	a.Status = target
	a.PublishedAt = publishedAt
	return nil
}

func (m *memoryRepo) SoftDelete(ctx context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memoryRepo) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	for _, a := range m.items {
		if a.Slug == slug && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, a := range m.items {
		counts[string(a.Status)]++
	}
	return counts, nil
}

type memoryWorkflow struct {
	entries []shared.WorkflowEntry
}

// Record keeps the entry exactly as handed over, so tests see the
// timestamp the service stamped.
func (m *memoryWorkflow) Record(ctx context.Context, entry shared.WorkflowEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryWorkflow) History(ctx context.Context, articleID int64) ([]shared.WorkflowEntry, error) {
	var out []shared.WorkflowEntry
	for _, e := range m.entries {
		if e.ArticleID == articleID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryIdem struct {
	keys map[string]struct{}
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]struct{})
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func reporter(id int64) authz.Principal {
	return authz.Principal{UserID: id, Role: authz.RoleReporter, Active: true}
}

func editor(id int64) authz.Principal {
	return authz.Principal{UserID: id, Role: authz.RoleEditor, Active: true}
}

func admin(id int64) authz.Principal {
	return authz.Principal{UserID: id, Role: authz.RoleAdmin, Active: true}
}

type recordingTransitions struct {
	counts map[string]int
}

func (r *recordingTransitions) RecordTransition(action string) {
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[action]++
}

func newTestService(repo *memoryRepo, wf *memoryWorkflow) *Service {
	engine := authz.NewEngine(authz.NewRegistry(nil), nil)
	if wf == nil {
		wf = &memoryWorkflow{}
	}
	return NewService(repo, engine, wf, &memoryIdem{}, nil, nil, nil, nil)
}

func TestCreateDraftOwnedByPrincipal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	article, err := svc.Create(context.Background(), reporter(7), CreateInput{
		Title:   "City Budget Passes",
		Content: "The council voted 7-2.",
	})
	require.NoError(t, err)
	require.Equal(t, authz.StatusDraft, article.Status)
	require.Equal(t, int64(7), article.UserID)
	require.Equal(t, "city-budget-passes", article.Slug)
	require.Nil(t, article.PublishedAt)
}

func TestCreateDeniedWithoutPermission(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), editor(3), CreateInput{Title: "X", Content: "y"})
	require.ErrorIs(t, err, ErrDenied)
}

func TestCreateSlugCollisionGetsSuffix(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, reporter(7), CreateInput{Title: "Weather Report", Content: "sun"})
	require.NoError(t, err)
	require.Equal(t, "weather-report", first.Slug)

	second, err := svc.Create(ctx, reporter(7), CreateInput{Title: "Weather Report", Content: "rain"})
	require.NoError(t, err)
	require.Equal(t, "weather-report-2", second.Slug)
}

func TestCreateIdempotencyKeyConflict(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	in := CreateInput{Title: "Once", Content: "only", IdempotencyKey: "key-1"}
	_, err := svc.Create(ctx, reporter(7), in)
	require.NoError(t, err)

	_, err = svc.Create(ctx, reporter(7), in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestListScopedForReporter(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Mine", Content: "a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, reporter(2), CreateInput{Title: "Theirs", Content: "b"})
	require.NoError(t, err)

	mine, _, err := svc.List(ctx, reporter(1), ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "Mine", mine[0].Title)

	all, _, err := svc.List(ctx, editor(9), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSubmitAndApproveFlow(t *testing.T) {
	repo := newMemoryRepo()
	wf := &memoryWorkflow{}
	svc := newTestService(repo, wf)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Flow", Content: "x"})
	require.NoError(t, err)

	// Reporter submits their own draft.
	article, err = svc.SetStatus(ctx, reporter(1), article.ID, authz.StatusReview, "")
	require.NoError(t, err)
	require.Equal(t, authz.StatusReview, article.Status)
	require.Nil(t, article.PublishedAt)

	// Editor cannot skip review on someone else's draft, but approves.
	article, err = svc.SetStatus(ctx, editor(2), article.ID, authz.StatusApproved, "looks good")
	require.NoError(t, err)
	require.Equal(t, authz.StatusApproved, article.Status)
	require.NotNil(t, article.PublishedAt)

	history, err := svc.History(ctx, editor(2), article.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, shared.WorkflowSubmit, history[0].Action)
	require.Equal(t, shared.WorkflowApprove, history[1].Action)
}

func TestTransitionsStampHistoryAndCounter(t *testing.T) {
	repo := newMemoryRepo()
	wf := &memoryWorkflow{}
	counter := &recordingTransitions{}
	engine := authz.NewEngine(authz.NewRegistry(nil), nil)
	svc := NewService(repo, engine, wf, &memoryIdem{}, nil, nil, counter, nil)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Stamped", Content: "x"})
	require.NoError(t, err)
	before := time.Now()
	_, err = svc.SetStatus(ctx, reporter(1), article.ID, authz.StatusReview, "")
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, editor(2), article.ID, authz.StatusApproved, "")
	require.NoError(t, err)

	require.Len(t, wf.entries, 2)
	for _, entry := range wf.entries {
		require.False(t, entry.At.IsZero())
		require.False(t, entry.At.Before(before))
	}
	require.False(t, wf.entries[1].At.Before(wf.entries[0].At))

	require.Equal(t, map[string]int{
		string(shared.WorkflowSubmit):  1,
		string(shared.WorkflowApprove): 1,
	}, counter.counts)
}

func TestReporterCannotApprove(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "No", Content: "x"})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, reporter(1), article.ID, authz.StatusApproved, "")
	require.ErrorIs(t, err, ErrDenied)
}

func TestSubmitRequiresOwnership(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Owned", Content: "x"})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, reporter(2), article.ID, authz.StatusReview, "")
	require.ErrorIs(t, err, ErrDenied)
}

func TestAdminReversalRecordedAsRevert(t *testing.T) {
	repo := newMemoryRepo()
	wf := &memoryWorkflow{}
	svc := newTestService(repo, wf)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Back", Content: "x"})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, reporter(1), article.ID, authz.StatusReview, "")
	require.NoError(t, err)

	article, err = svc.SetStatus(ctx, admin(9), article.ID, authz.StatusDraft, "needs rework")
	require.NoError(t, err)
	require.Equal(t, authz.StatusDraft, article.Status)
	require.Nil(t, article.PublishedAt)

	last := wf.entries[len(wf.entries)-1]
	require.Equal(t, shared.WorkflowRevert, last.Action)
}

func TestSetStatusRetriesOnceThenConflicts(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Race", Content: "x"})
	require.NoError(t, err)

	// First attempt loses the race to a concurrent submit; retry sees
	// review already set, the no-op transition is denied.
	repo.staleOnce = true
	repo.staleShift = authz.StatusReview
	_, err = svc.SetStatus(ctx, reporter(1), article.ID, authz.StatusReview, "")
	require.ErrorIs(t, err, ErrDenied)

	// A retry against a still-legal transition succeeds: concurrent
	// shift back to draft, then admin moves to review.
	repo.staleOnce = true
	repo.staleShift = authz.StatusDraft
	updated, err := svc.SetStatus(ctx, admin(9), article.ID, authz.StatusApproved, "")
	require.NoError(t, err)
	require.Equal(t, authz.StatusApproved, updated.Status)
}

func TestEditFrozenAfterApproval(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Frozen", Content: "x"})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, reporter(1), article.ID, authz.StatusReview, "")
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, editor(2), article.ID, authz.StatusApproved, "")
	require.NoError(t, err)

	_, err = svc.Update(ctx, reporter(1), article.ID, UpdateInput{Title: "Changed", Content: "y"})
	require.ErrorIs(t, err, ErrDenied)
	_, err = svc.Update(ctx, editor(2), article.ID, UpdateInput{Title: "Changed", Content: "y"})
	require.ErrorIs(t, err, ErrDenied)

	// The manage permission bypasses the freeze.
	updated, err := svc.Update(ctx, admin(9), article.ID, UpdateInput{Title: "Changed", Content: "y"})
	require.NoError(t, err)
	require.Equal(t, "Changed", updated.Title)
}

func TestDeleteGatedByEdit(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Gone", Content: "x"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, reporter(2), article.ID), ErrDenied)
	require.NoError(t, svc.Delete(ctx, reporter(1), article.ID))

	_, err = svc.Get(ctx, reporter(1), article.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInactivePrincipalDeniedEverywhere(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	article, err := svc.Create(ctx, reporter(1), CreateInput{Title: "Locked", Content: "x"})
	require.NoError(t, err)

	inactive := authz.Principal{UserID: 1, Role: authz.RoleAdmin, Active: false}
	_, err = svc.Get(ctx, inactive, article.ID)
	require.ErrorIs(t, err, ErrDenied)
	_, _, err = svc.List(ctx, inactive, ListFilter{})
	require.ErrorIs(t, err, ErrDenied)
	_, err = svc.Create(ctx, inactive, CreateInput{Title: "No", Content: "x"})
	require.ErrorIs(t, err, ErrDenied)
	_, err = svc.SetStatus(ctx, inactive, article.ID, authz.StatusReview, "")
	require.ErrorIs(t, err, ErrDenied)
}
