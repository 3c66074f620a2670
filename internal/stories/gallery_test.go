package stories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nssportal/internal/auth"
	"nssportal/internal/cloudinary"
	"nssportal/internal/portal"
)

type fakeStorage struct {
	uploaded  []string
	destroyed []string
	fail      bool
}

func (f *fakeStorage) Upload(ctx context.Context, resourceType string, data []byte, filename, subfolder string) (*cloudinary.UploadResult, error) {
	if f.fail {
		return nil, errors.New("upload refused")
	}
	id := fmt.Sprintf("nss/%s/%d", subfolder, len(f.uploaded)+1)
	f.uploaded = append(f.uploaded, id)
	return &cloudinary.UploadResult{PublicID: id, SecureURL: "https://res.example/" + id, ResourceType: resourceType}, nil
}

func (f *fakeStorage) Destroy(ctx context.Context, resourceType, publicID string) error {
	f.destroyed = append(f.destroyed, publicID)
	return nil
}

var (
	officer     = &auth.Session{Role: auth.RoleOfficer, Subject: "OFFICER001"}
	coordinator = &auth.Session{Role: auth.RoleCoordinator, Subject: "COORD1002"}
	student     = &auth.Session{Role: auth.RoleStudent, Subject: "101"}
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newGallery(t *testing.T) (*Gallery, *fakeStorage) {
	t.Helper()
	st := &fakeStorage{}
	g := NewGallery(NewMemStore(), st)
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	g.now = c.now
	require.NoError(t, g.EnsureDefault(context.Background()))
	return g, st
}

func images(n int) []Upload {
	out := make([]Upload, n)
	for i := range out {
		out[i] = Upload{Filename: fmt.Sprintf("img%d.jpg", i), ContentType: "image/jpeg", Data: []byte("x")}
	}
	return out
}

func TestEnsureDefaultSeedsOnce(t *testing.T) {
	g, _ := newGallery(t)
	ctx := context.Background()
	require.NoError(t, g.EnsureDefault(ctx))

	batches, err := g.Batches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, DefaultBatch, batches[0].Name)
	require.Len(t, batches[0].Albums, 1)
	assert.Equal(t, DefaultAlbum, batches[0].Albums[0].Name)
	assert.Empty(t, batches[0].FeaturedIDs)
}

func TestCreateBatchOfficerOnly(t *testing.T) {
	g, _ := newGallery(t)
	ctx := context.Background()

	_, err := g.CreateBatch(ctx, coordinator, "2025-26 Batch")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = g.CreateBatch(ctx, officer, "  ")
	var verr *portal.ValidationError
	assert.ErrorAs(t, err, &verr)

	b, err := g.CreateBatch(ctx, officer, "2025-26 Batch")
	require.NoError(t, err)

	newest, err := g.Batch(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, newest.ID)
}

func TestCreateAlbum(t *testing.T) {
	g, _ := newGallery(t)
	ctx := context.Background()
	b, _ := g.Batch(ctx, "")

	_, err := g.CreateAlbum(ctx, student, b.ID, "Camp")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = g.CreateAlbum(ctx, coordinator, "missing", "Camp")
	assert.ErrorIs(t, err, portal.ErrNotFound)

	a, err := g.CreateAlbum(ctx, coordinator, b.ID, "Camp")
	require.NoError(t, err)

	b, _ = g.Batch(ctx, b.ID)
	require.Len(t, b.Albums, 2)
	assert.Equal(t, a.ID, b.Albums[0].ID)
}

func TestAddMedia(t *testing.T) {
	g, st := newGallery(t)
	ctx := context.Background()
	b, _ := g.Batch(ctx, "")
	album := b.Albums[0].ID

	added, err := g.AddMedia(ctx, coordinator, album, []Upload{
		{Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
		{Filename: "b.mp4", ContentType: "video/mp4", Data: []byte("b")},
	})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, TypeImage, added[0].Type)
	assert.Equal(t, TypeVideo, added[1].Type)
	assert.Equal(t, "https://res.example/nss/stories/1", added[0].URL)
	assert.Len(t, st.uploaded, 2)

	b, _ = g.Batch(ctx, b.ID)
	assert.Len(t, b.Albums[0].Media, 2)
	assert.Equal(t, added[1].ID, b.Albums[0].Media[0].ID)
}

func TestAddMediaRejectsUnsupportedType(t *testing.T) {
	g, st := newGallery(t)
	ctx := context.Background()
	b, _ := g.Batch(ctx, "")

	_, err := g.AddMedia(ctx, coordinator, b.Albums[0].ID, []Upload{
		{Filename: "a.jpg", ContentType: "image/jpeg"},
		{Filename: "notes.pdf", ContentType: "application/pdf"},
	})
	var verr *portal.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, st.uploaded)
}

func TestAddMediaUnknownAlbumDiscardsUpload(t *testing.T) {
	g, st := newGallery(t)
	_, err := g.AddMedia(context.Background(), coordinator, "missing", images(1))
	assert.ErrorIs(t, err, portal.ErrNotFound)
	assert.Equal(t, st.uploaded, st.destroyed)
}

func TestAddMediaWithoutStorage(t *testing.T) {
	g := NewGallery(NewMemStore(), nil)
	ctx := context.Background()
	require.NoError(t, g.EnsureDefault(ctx))
	b, _ := g.Batch(ctx, "")

	_, err := g.AddMedia(ctx, coordinator, b.Albums[0].ID, images(1))
	assert.ErrorIs(t, err, cloudinary.ErrNotConfigured)
}

func TestAddMediaUploadFailure(t *testing.T) {
	g, st := newGallery(t)
	st.fail = true
	ctx := context.Background()
	b, _ := g.Batch(ctx, "")

	_, err := g.AddMedia(ctx, coordinator, b.Albums[0].ID, images(1))
	assert.Error(t, err)
	b, _ = g.Batch(ctx, b.ID)
	assert.Empty(t, b.Albums[0].Media)
}

func TestToggleFeaturedAndDelete(t *testing.T) {
	g, st := newGallery(t)
	ctx := context.Background()
	b, _ := g.Batch(ctx, "")
	added, err := g.AddMedia(ctx, coordinator, b.Albums[0].ID, images(2))
	require.NoError(t, err)

	_, err = g.ToggleFeatured(ctx, student, added[0].ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	on, err := g.ToggleFeatured(ctx, coordinator, added[1].ID)
	require.NoError(t, err)
	assert.True(t, on)
	on, err = g.ToggleFeatured(ctx, coordinator, added[0].ID)
	require.NoError(t, err)
	assert.True(t, on)

	b, _ = g.Batch(ctx, b.ID)
	assert.Equal(t, []string{added[1].ID, added[0].ID}, b.FeaturedIDs)

	on, err = g.ToggleFeatured(ctx, coordinator, added[1].ID)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, g.DeleteMedia(ctx, coordinator, added[0].ID))
	assert.Equal(t, []string{st.uploaded[0]}, st.destroyed)

	b, _ = g.Batch(ctx, b.ID)
	assert.Empty(t, b.FeaturedIDs)
	assert.ErrorIs(t, g.DeleteMedia(ctx, coordinator, added[0].ID), portal.ErrNotFound)
}

func TestFeaturedRows(t *testing.T) {
	g, _ := newGallery(t)
	ctx := context.Background()
	b, _ := g.Batch(ctx, "")
	added, err := g.AddMedia(ctx, coordinator, b.Albums[0].ID, images(12))
	require.NoError(t, err)
	video, err := g.AddMedia(ctx, coordinator, b.Albums[0].ID, []Upload{{Filename: "v.mp4", ContentType: "video/mp4"}})
	require.NoError(t, err)

	_, err = g.ToggleFeatured(ctx, coordinator, video[0].ID)
	require.NoError(t, err)
	for _, m := range added {
		_, err := g.ToggleFeatured(ctx, coordinator, m.ID)
		require.NoError(t, err)
	}

	f, err := g.Featured(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, f.Top, 5)
	require.Len(t, f.Bottom, 5)
	assert.Equal(t, added[0].ID, f.Top[0].ID)
	assert.Equal(t, added[5].ID, f.Bottom[0].ID)
	for _, m := range append(f.Top, f.Bottom...) {
		assert.Equal(t, TypeImage, m.Type)
	}
}

func TestFeaturedEmptyBatch(t *testing.T) {
	g, _ := newGallery(t)
	f, err := g.Featured(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, f.Top)
	assert.Empty(t, f.Bottom)

	_, err = g.Featured(context.Background(), "missing")
	assert.ErrorIs(t, err, portal.ErrNotFound)
}

func TestMergeAlbumIsNoop(t *testing.T) {
	g, _ := newGallery(t)
	ctx := context.Background()
	before, _ := g.Batch(ctx, "")

	assert.ErrorIs(t, g.MergeAlbum(ctx, student, before.ID), auth.ErrForbidden)
	require.NoError(t, g.MergeAlbum(ctx, coordinator, before.ID))

	after, _ := g.Batch(ctx, before.ID)
	assert.Equal(t, before, after)
}

type downStore struct{ *MemStore }

func (downStore) ListBatches(ctx context.Context) ([]Batch, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsRetryable(t *testing.T) {
	g := NewGallery(downStore{NewMemStore()}, &fakeStorage{})
	_, err := g.Batches(context.Background())

	var se *portal.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "stories", se.Collection)
	assert.True(t, se.Retryable())
	assert.ErrorAs(t, g.EnsureDefault(context.Background()), &se)
}

func TestMissingMediaIsNotRetryable(t *testing.T) {
	g, _ := newGallery(t)
	_, err := g.ToggleFeatured(context.Background(), coordinator, "nope")
	require.ErrorIs(t, err, portal.ErrNotFound)
	var se *portal.StoreError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Retryable())
}
