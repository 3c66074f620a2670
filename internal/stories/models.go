package stories

import (
	"context"
	"time"

	"nssportal/internal/cloudinary"
)

// Media types.
const (
	TypeImage = "image"
	TypeVideo = "video"
)

// Batch is one academic year's stories. Albums are newest first;
// FeaturedIDs are in the order they were featured.
type Batch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	Albums      []Album   `json:"albums"`
	FeaturedIDs []string  `json:"featured_media_ids"`
}

// Album groups media within a batch. Media are newest first.
type Album struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batch_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Media     []Media   `json:"media"`
}

// Media is an uploaded image or video.
type Media struct {
	ID         string     `json:"id"`
	AlbumID    string     `json:"album_id"`
	Type       string     `json:"type"`
	URL        string     `json:"url"`
	PublicID   string     `json:"-"`
	Title      string     `json:"title"`
	CreatedAt  time.Time  `json:"created_at"`
	FeaturedAt *time.Time `json:"featured_at,omitempty"`
}

// Upload is a file to add to an album.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Featured is the featured strip of a batch, split into two rows.
type Featured struct {
	Top    []Media `json:"top"`
	Bottom []Media `json:"bottom"`
}

// Store persists batches, albums and media. Missing parents and records are
// reported as portal.ErrNotFound.
type Store interface {
	// ListBatches returns every batch, newest first, with albums and media.
	ListBatches(ctx context.Context) ([]Batch, error)
	InsertBatch(ctx context.Context, name string) (Batch, error)
	InsertAlbum(ctx context.Context, batchID, name string) (Album, error)
	InsertMedia(ctx context.Context, m Media) (Media, error)
	GetMedia(ctx context.Context, id string) (Media, error)
	DeleteMedia(ctx context.Context, id string) error
	// SetFeatured stamps or clears featured_at.
	SetFeatured(ctx context.Context, id string, at *time.Time) error
}

// MediaStorage keeps uploaded files durably.
type MediaStorage interface {
	Upload(ctx context.Context, resourceType string, data []byte, filename, subfolder string) (*cloudinary.UploadResult, error)
	Destroy(ctx context.Context, resourceType, publicID string) error
}
