package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/activesoft/go-backoffice/cache"
	"github.com/activesoft/go-backoffice/pkg/testsupport"
	"github.com/activesoft/go-backoffice/record"
)

func newCachedServiceStore(t *testing.T) (*Cached[*record.Service], cache.CacheService, *bun.DB) {
	t.Helper()
	db := testsupport.NewTestDB(t)
	svc, err := cache.New(cache.DefaultConfig(), nil)
	require.NoError(t, err)

	base := New(db, "services", func() *record.Service { return new(record.Service) },
		WithAuthGate[*record.Service](&fakeGate{userID: "user-1", ok: true}),
	)
	return NewCached(base, svc, 0), svc, db
}

func TestCached_FindByIDServesFromCache(t *testing.T) {
	cached, _, db := newCachedServiceStore(t)
	created, err := cached.Create(context.Background(), validService())
	require.NoError(t, err)

	first, err := cached.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.TitleEn, first.TitleEn)

	// Remove the row behind the store's back; a cached read must not notice.
	_, err = db.NewDelete().Table("services").Where("id = ?", created.ID).Exec(context.Background())
	require.NoError(t, err)

	again, err := cached.FindByID(context.Background(), created.ID)
	require.NoError(t, err, "second read must come from the cache")
	assert.Equal(t, created.ID, again.ID)

	_, err = cached.Base().FindByID(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound, "the row itself is gone")
}

func TestCached_WriteInvalidatesListings(t *testing.T) {
	cached, _, _ := newCachedServiceStore(t)
	_, err := cached.Create(context.Background(), validService())
	require.NoError(t, err)

	page, err := cached.FindMany(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	second := validService()
	second.TitleEn = "EPM Consulting"
	_, err = cached.Create(context.Background(), second)
	require.NoError(t, err)

	page, err = cached.FindMany(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "the create must drop the cached listing")
	assert.Len(t, page.Items, 2)
}

func TestCached_DistinctListOptionsGetDistinctKeys(t *testing.T) {
	cached, svc, _ := newCachedServiceStore(t)
	_, err := cached.Create(context.Background(), validService())
	require.NoError(t, err)
	svc.Clear()

	_, err = cached.FindMany(context.Background(), ListOptions{})
	require.NoError(t, err)
	_, err = cached.FindMany(context.Background(), ListOptions{Limit: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, svc.Len())
}

func TestCached_DeleteInvalidates(t *testing.T) {
	cached, _, _ := newCachedServiceStore(t)
	created, err := cached.Create(context.Background(), validService())
	require.NoError(t, err)

	page, err := cached.FindMany(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	require.NoError(t, cached.Delete(context.Background(), created.ID))

	page, err = cached.FindMany(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = cached.FindByID(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
