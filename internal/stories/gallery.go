// Package stories is the media gallery shown on the stories page.
package stories

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"nssportal/internal/auth"
	"nssportal/internal/cloudinary"
	"nssportal/internal/portal"
)

// Default batch and album seeded into an empty gallery.
const (
	DefaultBatch = "2024-25 Batch"
	DefaultAlbum = "Orientation Program"
)

// featuredRow is the number of items in one featured row.
const featuredRow = 5

// Gallery manages story batches, albums and media.
type Gallery struct {
	store   Store
	storage MediaStorage
	now     func() time.Time
}

// NewGallery creates a gallery. storage may be nil, in which case uploads
// fail with cloudinary.ErrNotConfigured.
func NewGallery(store Store, storage MediaStorage) *Gallery {
	return &Gallery{store: store, storage: storage, now: time.Now}
}

// EnsureDefault seeds the default batch and album when there are no batches.
func (g *Gallery) EnsureDefault(ctx context.Context) error {
	batches, err := g.store.ListBatches(ctx)
	if err != nil {
		return storeErr("select", err)
	}
	if len(batches) > 0 {
		return nil
	}
	b, err := g.store.InsertBatch(ctx, DefaultBatch)
	if err != nil {
		return storeErr("insert", err)
	}
	_, err = g.store.InsertAlbum(ctx, b.ID, DefaultAlbum)
	return storeErr("insert", err)
}

// Batches returns every batch, newest first.
func (g *Gallery) Batches(ctx context.Context) ([]Batch, error) {
	batches, err := g.store.ListBatches(ctx)
	return batches, storeErr("select", err)
}

// Batch returns the batch with id, or the newest batch when id is empty.
func (g *Gallery) Batch(ctx context.Context, id string) (Batch, error) {
	batches, err := g.store.ListBatches(ctx)
	if err != nil {
		return Batch{}, storeErr("select", err)
	}
	for _, b := range batches {
		if id == "" || b.ID == id {
			return b, nil
		}
	}
	return Batch{}, fmt.Errorf("batch %q: %w", id, portal.ErrNotFound)
}

// CreateBatch adds a batch. Officers only.
func (g *Gallery) CreateBatch(ctx context.Context, s *auth.Session, name string) (Batch, error) {
	if !s.IsOfficer() {
		return Batch{}, auth.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Batch{}, &portal.ValidationError{Fields: map[string]string{"name": "required"}}
	}
	b, err := g.store.InsertBatch(ctx, name)
	return b, storeErr("insert", err)
}

// CreateAlbum adds an album to a batch.
func (g *Gallery) CreateAlbum(ctx context.Context, s *auth.Session, batchID, name string) (Album, error) {
	if !s.CanCoordinate() {
		return Album{}, auth.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Album{}, &portal.ValidationError{Fields: map[string]string{"name": "required"}}
	}
	a, err := g.store.InsertAlbum(ctx, batchID, name)
	return a, storeErr("insert", err)
}

// AddMedia uploads files to durable storage and adds them to an album.
// Files are typed image or video from their content type; anything else is
// rejected before any upload happens.
func (g *Gallery) AddMedia(ctx context.Context, s *auth.Session, albumID string, files []Upload) ([]Media, error) {
	if !s.CanCoordinate() {
		return nil, auth.ErrForbidden
	}
	if len(files) == 0 {
		return nil, &portal.ValidationError{Fields: map[string]string{"files": "required"}}
	}
	for _, f := range files {
		if mediaType(f.ContentType) == "" {
			return nil, &portal.ValidationError{Fields: map[string]string{"files": "unsupported type " + f.ContentType}}
		}
	}
	if g.storage == nil {
		return nil, cloudinary.ErrNotConfigured
	}

	added := make([]Media, 0, len(files))
	for _, f := range files {
		typ := mediaType(f.ContentType)
		res, err := g.storage.Upload(ctx, typ, f.Data, f.Filename, "stories")
		if err != nil {
			return added, fmt.Errorf("upload %s: %w", f.Filename, err)
		}
		m, err := g.store.InsertMedia(ctx, Media{
			AlbumID:  albumID,
			Type:     typ,
			URL:      res.SecureURL,
			PublicID: res.PublicID,
			Title:    f.Filename,
		})
		if err != nil {
			g.discard(typ, res.PublicID)
			return added, storeErr("insert", err)
		}
		added = append(added, m)
	}
	return added, nil
}

// DeleteMedia removes a media item. It stops being featured with it.
func (g *Gallery) DeleteMedia(ctx context.Context, s *auth.Session, mediaID string) error {
	if !s.CanCoordinate() {
		return auth.ErrForbidden
	}
	m, err := g.store.GetMedia(ctx, mediaID)
	if err != nil {
		return storeErr("select", err)
	}
	if err := g.store.DeleteMedia(ctx, mediaID); err != nil {
		return storeErr("delete", err)
	}
	g.discard(m.Type, m.PublicID)
	return nil
}

func (g *Gallery) discard(typ, publicID string) {
	if g.storage == nil || publicID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := g.storage.Destroy(ctx, typ, publicID); err != nil {
		log.Printf("stories: destroy %s: %v", publicID, err)
	}
}

// ToggleFeatured flips whether a media item is featured in its batch and
// returns the new state.
func (g *Gallery) ToggleFeatured(ctx context.Context, s *auth.Session, mediaID string) (bool, error) {
	if !s.CanCoordinate() {
		return false, auth.ErrForbidden
	}
	m, err := g.store.GetMedia(ctx, mediaID)
	if err != nil {
		return false, storeErr("select", err)
	}
	if m.FeaturedAt != nil {
		return false, storeErr("update", g.store.SetFeatured(ctx, mediaID, nil))
	}
	now := g.now().UTC()
	return true, storeErr("update", g.store.SetFeatured(ctx, mediaID, &now))
}

// Featured returns the featured images of a batch in two rows of up to five.
// Videos are never featured in the strip.
func (g *Gallery) Featured(ctx context.Context, batchID string) (Featured, error) {
	b, err := g.Batch(ctx, batchID)
	if err != nil {
		return Featured{}, err
	}
	return FeaturedRows(b), nil
}

// FeaturedRows picks the featured images of b in featured order.
func FeaturedRows(b Batch) Featured {
	byID := make(map[string]Media)
	for _, a := range b.Albums {
		for _, m := range a.Media {
			byID[m.ID] = m
		}
	}
	var images []Media
	for _, id := range b.FeaturedIDs {
		if m, ok := byID[id]; ok && m.Type == TypeImage {
			images = append(images, m)
		}
	}
	out := Featured{Top: []Media{}, Bottom: []Media{}}
	for i, m := range images {
		switch {
		case i < featuredRow:
			out.Top = append(out.Top, m)
		case i < 2*featuredRow:
			out.Bottom = append(out.Bottom, m)
		}
	}
	return out
}

// MergeAlbum is reserved for combining a batch's albums into one. It
// currently changes nothing.
func (g *Gallery) MergeAlbum(ctx context.Context, s *auth.Session, batchID string) error {
	if !s.CanCoordinate() {
		return auth.ErrForbidden
	}
	_, err := g.Batch(ctx, batchID)
	return err
}

// storeErr reports a failed gallery store call the way portal reports its
// own, so callers can tell a retryable outage from a missing record.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &portal.StoreError{Collection: "stories", Op: op, Err: err}
}

func mediaType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return TypeImage
	case strings.HasPrefix(contentType, "video/"):
		return TypeVideo
	}
	return ""
}

// featuredOrder returns the ids of featured media in b, oldest feature first.
func featuredOrder(albums []Album) []string {
	var featured []Media
	for _, a := range albums {
		for _, m := range a.Media {
			if m.FeaturedAt != nil {
				featured = append(featured, m)
			}
		}
	}
	sort.SliceStable(featured, func(i, j int) bool { return featured[i].FeaturedAt.Before(*featured[j].FeaturedAt) })
	ids := make([]string, len(featured))
	for i, m := range featured {
		ids[i] = m.ID
	}
	return ids
}
