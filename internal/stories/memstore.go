package stories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nssportal/internal/portal"
)

// MemStore keeps the gallery in process memory.
type MemStore struct {
	mu      sync.Mutex
	seq     int64
	batches map[string]*memBatch
	albums  map[string]*memAlbum
	media   map[string]*memMedia
	now     func() time.Time
}

type memBatch struct {
	seq int64
	b   Batch
}

type memAlbum struct {
	seq int64
	a   Album
}

type memMedia struct {
	seq int64
	m   Media
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty gallery store.
func NewMemStore() *MemStore {
	return &MemStore{
		batches: make(map[string]*memBatch),
		albums:  make(map[string]*memAlbum),
		media:   make(map[string]*memMedia),
		now:     time.Now,
	}
}

func (s *MemStore) next() int64 {
	s.seq++
	return s.seq
}

func (s *MemStore) ListBatches(ctx context.Context) ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	media := make([]*memMedia, 0, len(s.media))
	for _, m := range s.media {
		media = append(media, m)
	}
	sort.Slice(media, func(i, j int) bool { return media[i].seq > media[j].seq })

	albums := make([]*memAlbum, 0, len(s.albums))
	for _, a := range s.albums {
		albums = append(albums, a)
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i].seq > albums[j].seq })

	batches := make([]*memBatch, 0, len(s.batches))
	for _, b := range s.batches {
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].seq > batches[j].seq })

	out := make([]Batch, 0, len(batches))
	for _, mb := range batches {
		b := mb.b
		b.Albums = []Album{}
		for _, ma := range albums {
			if ma.a.BatchID != b.ID {
				continue
			}
			a := ma.a
			a.Media = []Media{}
			for _, mm := range media {
				if mm.m.AlbumID == a.ID {
					a.Media = append(a.Media, mm.m)
				}
			}
			b.Albums = append(b.Albums, a)
		}
		b.FeaturedIDs = featuredOrder(b.Albums)
		out = append(out, b)
	}
	return out, nil
}

func (s *MemStore) InsertBatch(ctx context.Context, name string) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := Batch{ID: uuid.NewString(), Name: name, CreatedAt: s.now().UTC(), Albums: []Album{}, FeaturedIDs: []string{}}
	s.batches[b.ID] = &memBatch{seq: s.next(), b: b}
	return b, nil
}

func (s *MemStore) InsertAlbum(ctx context.Context, batchID, name string) (Album, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batchID]; !ok {
		return Album{}, portal.ErrNotFound
	}
	a := Album{ID: uuid.NewString(), BatchID: batchID, Name: name, CreatedAt: s.now().UTC(), Media: []Media{}}
	s.albums[a.ID] = &memAlbum{seq: s.next(), a: a}
	return a, nil
}

func (s *MemStore) InsertMedia(ctx context.Context, m Media) (Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.albums[m.AlbumID]; !ok {
		return Media{}, portal.ErrNotFound
	}
	m.ID = uuid.NewString()
	m.CreatedAt = s.now().UTC()
	m.FeaturedAt = nil
	s.media[m.ID] = &memMedia{seq: s.next(), m: m}
	return m, nil
}

func (s *MemStore) GetMedia(ctx context.Context, id string) (Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm, ok := s.media[id]
	if !ok {
		return Media{}, portal.ErrNotFound
	}
	return mm.m, nil
}

func (s *MemStore) DeleteMedia(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[id]; !ok {
		return portal.ErrNotFound
	}
	delete(s.media, id)
	return nil
}

func (s *MemStore) SetFeatured(ctx context.Context, id string, at *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm, ok := s.media[id]
	if !ok {
		return portal.ErrNotFound
	}
	if at != nil {
		t := *at
		at = &t
	}
	mm.m.FeaturedAt = at
	return nil
}
