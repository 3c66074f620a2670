package stories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"nssportal/internal/portal"
)

// PGStore keeps the gallery in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a gallery store on an open pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return portal.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return portal.ErrNotFound
	}
	return err
}

func (p *PGStore) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, created_at FROM story_batches ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	var batches []Batch
	index := map[string]int{}
	for rows.Next() {
		b := Batch{Albums: []Album{}}
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[b.ID] = len(batches)
		batches = append(batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = p.pool.Query(ctx, `SELECT id, batch_id, name, created_at FROM story_albums ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	var albums []Album
	for rows.Next() {
		a := Album{Media: []Media{}}
		if err := rows.Scan(&a.ID, &a.BatchID, &a.Name, &a.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		albums = append(albums, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = p.pool.Query(ctx, `
		SELECT id, album_id, type, url, public_id, title, created_at, featured_at
		FROM story_media ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	media := map[string][]Media{}
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.AlbumID, &m.Type, &m.URL, &m.PublicID, &m.Title, &m.CreatedAt, &m.FeaturedAt); err != nil {
			rows.Close()
			return nil, err
		}
		media[m.AlbumID] = append(media[m.AlbumID], m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range albums {
		i, ok := index[a.BatchID]
		if !ok {
			continue
		}
		if ms := media[a.ID]; ms != nil {
			a.Media = ms
		}
		batches[i].Albums = append(batches[i].Albums, a)
	}
	out := make([]Batch, 0, len(batches))
	for _, b := range batches {
		b.FeaturedIDs = featuredOrder(b.Albums)
		out = append(out, b)
	}
	return out, nil
}

func (p *PGStore) InsertBatch(ctx context.Context, name string) (Batch, error) {
	b := Batch{ID: uuid.NewString(), Name: name, Albums: []Album{}, FeaturedIDs: []string{}}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO story_batches (id, name) VALUES ($1, $2) RETURNING created_at
	`, b.ID, b.Name).Scan(&b.CreatedAt)
	return b, mapErr(err)
}

func (p *PGStore) InsertAlbum(ctx context.Context, batchID, name string) (Album, error) {
	a := Album{ID: uuid.NewString(), BatchID: batchID, Name: name, Media: []Media{}}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO story_albums (id, batch_id, name) VALUES ($1, $2, $3) RETURNING created_at
	`, a.ID, a.BatchID, a.Name).Scan(&a.CreatedAt)
	return a, mapErr(err)
}

func (p *PGStore) InsertMedia(ctx context.Context, m Media) (Media, error) {
	m.ID = uuid.NewString()
	m.FeaturedAt = nil
	err := p.pool.QueryRow(ctx, `
		INSERT INTO story_media (id, album_id, type, url, public_id, title)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, m.AlbumID, m.Type, m.URL, m.PublicID, m.Title).Scan(&m.CreatedAt)
	return m, mapErr(err)
}

func (p *PGStore) GetMedia(ctx context.Context, id string) (Media, error) {
	var m Media
	err := p.pool.QueryRow(ctx, `
		SELECT id, album_id, type, url, public_id, title, created_at, featured_at
		FROM story_media WHERE id = $1
	`, id).Scan(&m.ID, &m.AlbumID, &m.Type, &m.URL, &m.PublicID, &m.Title, &m.CreatedAt, &m.FeaturedAt)
	return m, mapErr(err)
}

func (p *PGStore) DeleteMedia(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM story_media WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return portal.ErrNotFound
	}
	return nil
}

func (p *PGStore) SetFeatured(ctx context.Context, id string, at *time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE story_media SET featured_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return portal.ErrNotFound
	}
	return nil
}
