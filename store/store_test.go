package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activesoft/go-backoffice/events"
	"github.com/activesoft/go-backoffice/pkg/testsupport"
	"github.com/activesoft/go-backoffice/record"
)

// fakeGate grants or denies write access per test.
type fakeGate struct {
	userID string
	ok     bool
}

func (g *fakeGate) Actor() (string, bool) { return g.userID, g.ok }

// capturePublisher records published changes for assertions.
type capturePublisher struct {
	changes []events.Change
}

func (p *capturePublisher) Publish(ctx context.Context, change events.Change) error {
	p.changes = append(p.changes, change)
	return nil
}

func newServiceStore(t *testing.T, opts ...Option[*record.Service]) (*Store[*record.Service], *capturePublisher) {
	t.Helper()
	db := testsupport.NewTestDB(t)
	pub := &capturePublisher{}
	base := []Option[*record.Service]{
		WithAuthGate[*record.Service](&fakeGate{userID: "user-1", ok: true}),
		WithPublisher[*record.Service](pub),
		WithSearchColumn[*record.Service]("title_en"),
	}
	s := New(db, "services", func() *record.Service { return new(record.Service) }, append(base, opts...)...)
	return s, pub
}

func validService() *record.Service {
	return &record.Service{
		TitleEn:       "ERP Implementation",
		TitleAr:       "تطبيق تخطيط الموارد",
		DescriptionEn: "Full-cycle rollout",
		Published:     true,
	}
}

func TestStore_CreateAssignsServerFields(t *testing.T) {
	s, pub := newServiceStore(t)

	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	require.Len(t, pub.changes, 1)
	assert.Equal(t, events.OpCreate, pub.changes[0].Op)
	assert.Equal(t, "services", pub.changes[0].Table)
	assert.Equal(t, created.ID, pub.changes[0].RecordID)
}

func TestStore_CreateIgnoresClientTimestamps(t *testing.T) {
	s, _ := newServiceStore(t)

	svc := validService()
	svc.CreatedAt = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := s.Create(context.Background(), svc)
	require.NoError(t, err)
	assert.True(t, created.CreatedAt.Year() >= 2020, "client-supplied created_at must be overwritten")
}

func TestStore_CreateValidation(t *testing.T) {
	s, pub := newServiceStore(t)

	_, err := s.Create(context.Background(), &record.Service{TitleEn: "x"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Empty(t, pub.changes, "no event for a rejected write")
}

func TestStore_CreateRequiresAuth(t *testing.T) {
	s, _ := newServiceStore(t, WithAuthGate[*record.Service](&fakeGate{ok: false}))

	_, err := s.Create(context.Background(), validService())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestStore_CreateSanitizesStrings(t *testing.T) {
	s, _ := newServiceStore(t)

	svc := validService()
	svc.TitleEn = "  <script>ERP Implementation</script>  "
	created, err := s.Create(context.Background(), svc)
	require.NoError(t, err)
	assert.Equal(t, "scriptERP Implementation/script", created.TitleEn)
}

func TestStore_FindByID(t *testing.T) {
	s, _ := newServiceStore(t)
	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	found, err := s.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.TitleEn, found.TitleEn)

	_, err = s.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateRevalidatesPatchedRecord(t *testing.T) {
	s, pub := newServiceStore(t)
	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)
	pub.changes = nil

	// "x" passes the column checks but violates the record's length rule;
	// the whole patched row is validated, so the write must roll back.
	_, err = s.Update(context.Background(), created.ID, map[string]any{"title_en": "x"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Empty(t, pub.changes, "no event for a rejected write")

	current, err := s.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ERP Implementation", current.TitleEn, "rejected patch must leave the row untouched")
	assert.WithinDuration(t, created.UpdatedAt, current.UpdatedAt, time.Second)
}

func TestStore_UpdateLifecycle(t *testing.T) {
	s, pub := newServiceStore(t)
	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	updated, err := s.Update(context.Background(), created.ID, map[string]any{
		"title_en":  "Oracle ERP Implementation",
		"published": false,
	})
	require.NoError(t, err)
	assert.Equal(t, "Oracle ERP Implementation", updated.TitleEn)
	assert.False(t, updated.Published)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt),
		"updated_at must advance past created_at")

	require.Len(t, pub.changes, 2)
	assert.Equal(t, events.OpUpdate, pub.changes[1].Op)
}

func TestStore_UpdateRejectsProtectedColumns(t *testing.T) {
	s, _ := newServiceStore(t)
	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	for _, column := range []string{"id", "created_at"} {
		_, err := s.Update(context.Background(), created.ID, map[string]any{column: "x"})
		assert.True(t, IsValidationError(err), "column %s must be rejected", column)
	}

	_, err = s.Update(context.Background(), created.ID, map[string]any{"title_en; DROP TABLE services": "x"})
	assert.True(t, IsValidationError(err))
}

func TestStore_UpdateMissingRecord(t *testing.T) {
	s, _ := newServiceStore(t)
	_, err := s.Update(context.Background(), "missing", map[string]any{"title_en": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateImmutableCollection(t *testing.T) {
	db := testsupport.NewTestDB(t)
	contacts := New(db, "contact_submissions",
		func() *record.ContactSubmission { return new(record.ContactSubmission) },
		WithImmutable[*record.ContactSubmission](),
		WithAnonymousCreate[*record.ContactSubmission](),
	)

	created, err := contacts.Create(context.Background(), &record.ContactSubmission{
		Name:    "Visitor",
		Email:   "visitor@example.com",
		Message: "I would like a quote for an ERP rollout.",
	})
	require.NoError(t, err)

	_, err = contacts.Update(context.Background(), created.ID, map[string]any{"message": "edited"})
	assert.ErrorIs(t, err, ErrImmutable)
}

func TestStore_AnonymousCreateOnlyBypassesGate(t *testing.T) {
	db := testsupport.NewTestDB(t)
	gate := &fakeGate{ok: false}
	contacts := New(db, "contact_submissions",
		func() *record.ContactSubmission { return new(record.ContactSubmission) },
		WithAuthGate[*record.ContactSubmission](gate),
		WithAnonymousCreate[*record.ContactSubmission](),
	)

	created, err := contacts.Create(context.Background(), &record.ContactSubmission{
		Name:    "Visitor",
		Email:   "visitor@example.com",
		Message: "I would like a quote for an ERP rollout.",
	})
	require.NoError(t, err, "anonymous create must pass without a session")

	err = contacts.Delete(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrAuthRequired, "delete stays gated")
}

func TestStore_DeleteIsNotIdempotent(t *testing.T) {
	s, _ := newServiceStore(t)
	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), created.ID))
	assert.ErrorIs(t, s.Delete(context.Background(), created.ID), ErrNotFound)
}

func TestStore_BulkCreateAllOrNothing(t *testing.T) {
	s, _ := newServiceStore(t)

	_, err := s.BulkCreate(context.Background(), []*record.Service{
		validService(),
		{TitleEn: "x"}, // invalid
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	page, err := s.FindMany(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "failed batch must insert nothing")
}

func TestStore_BulkDelete(t *testing.T) {
	s, _ := newServiceStore(t)
	first, err := s.Create(context.Background(), validService())
	require.NoError(t, err)
	second, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	deleted, err := s.BulkDelete(context.Background(), []string{first.ID, second.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
}

func TestStore_FindManyFiltersAndPaging(t *testing.T) {
	s, _ := newServiceStore(t)
	titles := []string{"Oracle Financials", "Oracle HCM", "SAP Migration"}
	for i, title := range titles {
		svc := validService()
		svc.TitleEn = title
		svc.SortOrder = i
		svc.Published = i < 2
		_, err := s.Create(context.Background(), svc)
		require.NoError(t, err)
	}

	page, err := s.FindMany(context.Background(), ListOptions{
		Filters: map[string]any{"published": true},
		OrderBy: "sort_order",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Oracle Financials", page.Items[0].TitleEn)

	page, err = s.FindMany(context.Background(), ListOptions{
		OrderBy: "sort_order", Limit: 2, Offset: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total, "total ignores pagination")
	require.Len(t, page.Items, 1)
	assert.Equal(t, "SAP Migration", page.Items[0].TitleEn)
}

func TestStore_FindManySearch(t *testing.T) {
	s, _ := newServiceStore(t)
	for _, title := range []string{"Oracle Financials", "Cloud Strategy"} {
		svc := validService()
		svc.TitleEn = title
		_, err := s.Create(context.Background(), svc)
		require.NoError(t, err)
	}

	page, err := s.FindMany(context.Background(), ListOptions{Search: "oracle"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Oracle Financials", page.Items[0].TitleEn)
}

func TestStore_ConflictMapping(t *testing.T) {
	db := testsupport.NewTestDB(t)
	settings := New(db, "settings", func() *record.Setting { return new(record.Setting) })

	_, err := settings.Create(context.Background(), &record.Setting{Key: "site_title", ValueEn: "a"})
	require.NoError(t, err)
	_, err = settings.Create(context.Background(), &record.Setting{Key: "site_title", ValueEn: "b"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStore_ReadsBypassGate(t *testing.T) {
	s, _ := newServiceStore(t)
	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	denied := New(s.db, "services", func() *record.Service { return new(record.Service) },
		WithAuthGate[*record.Service](&fakeGate{ok: false}))

	found, err := denied.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.RecordID())

	_, err = denied.FindMany(context.Background(), ListOptions{})
	require.NoError(t, err)
}

func TestStore_EmptyBulkOperations(t *testing.T) {
	s, _ := newServiceStore(t)

	recs, err := s.BulkCreate(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, recs)

	n, err := s.BulkDelete(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_EmptyPatchRejected(t *testing.T) {
	s, _ := newServiceStore(t)
	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	_, err = s.Update(context.Background(), created.ID, nil)
	assert.True(t, IsValidationError(err))
	_, err = s.Update(context.Background(), created.ID, map[string]any{})
	assert.True(t, IsValidationError(err))
}

func TestStore_ErrorsAreReturnedNotPanicked(t *testing.T) {
	s, _ := newServiceStore(t)
	assert.NotPanics(t, func() {
		_, _ = s.FindByID(context.Background(), "missing")
		_ = s.Delete(context.Background(), "missing")
		_, _ = s.Update(context.Background(), "missing", map[string]any{"title_en": "x"})
	})
}

func TestStore_SanitizePatchValues(t *testing.T) {
	s, _ := newServiceStore(t)
	created, err := s.Create(context.Background(), validService())
	require.NoError(t, err)

	updated, err := s.Update(context.Background(), created.ID, map[string]any{
		"title_en": "  <b>Bold Title</b>  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "bBold Title/b", updated.TitleEn)
}

func TestStore_ContextCancellation(t *testing.T) {
	s, _ := newServiceStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, validService())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
