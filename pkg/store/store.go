package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/tumblr"
)

// ErrNotFound is returned when a post or media row does not exist
var ErrNotFound = errors.New("not found")

// Options tunes Open; zero values take defaults
type Options struct {
	TagCacheSize int
	Logger       logger.Logger
}

// Store owns every read and write against the archive database
type Store struct {
	db       *sql.DB
	path     string
	tagCache *lru.Cache[string, int64]
	logger   logger.Logger
}

// MediaItem is one row of the media table
type MediaItem struct {
	ID           int64
	PostID       int64
	URL          string
	LocalPath    string // empty until a download succeeds
	MediaType    string
	Width        *int64
	Height       *int64
	OriginalSize *int64
	Downloaded   bool
}

// PostRecord is one row of the posts table
type PostRecord struct {
	ID        int64
	BlogName  string
	Type      string
	State     string
	Format    string
	Timestamp int64
	Date      string
	Tags      string
	ShortURL  string
	Summary   string
	ReblogKey string
	PostURL   string
	Slug      string
	NoteCount int64
	RawData   string
}

// Stats summarises the archive
type Stats struct {
	Posts           int64
	Blogs           int64
	Tags            int64
	Media           int64
	MediaDownloaded int64
	MediaFailed     int64
	MediaPending    int64
}

// Open migrates the database at path to the current schema and opens it
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	size := opts.TagCacheSize
	if size <= 0 {
		size = 1024
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	version, err := Migrate(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cache, err := lru.New[string, int64](size)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tag cache: %w", err)
	}

	log.DebugWithFields("archive database ready", map[string]interface{}{
		"path":           path,
		"schema_version": int64(version),
	})

	return &Store{db: db, path: path, tagCache: cache, logger: log}, nil
}

// dsn enables WAL so download workers can update rows while others read,
// and takes the write lock at BEGIN so concurrent writers queue on
// busy_timeout instead of failing on lock upgrade
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// UpsertPost inserts post with its tag links and media rows in a single
// transaction. It returns false without touching anything if the id is
// already archived.
func (s *Store) UpsertPost(ctx context.Context, post *tumblr.Post) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, post.ID).Scan(&exists)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check post %d: %w", post.ID, err)
	}

	refs, err := post.MediaRefs()
	if err != nil {
		return false, fmt.Errorf("failed to extract media for post %d: %w", post.ID, err)
	}

	raw := string(post.Raw)
	if raw == "" {
		b, err := post.MarshalJSON()
		if err != nil {
			return false, fmt.Errorf("failed to encode post %d: %w", post.ID, err)
		}
		raw = string(b)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (
			id, blog_name, type, state, format, timestamp, date, tags,
			short_url, summary, reblog_key, post_url, slug, note_count, raw_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.BlogName, string(post.Type), post.State, post.Format,
		post.Timestamp, post.Date, strings.Join(post.Tags, ","),
		post.ShortURL, post.Summary, post.ReblogKey, post.PostURL, post.Slug,
		post.NoteCount, raw,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert post %d: %w", post.ID, err)
	}

	resolved := make(map[string]int64, len(post.Tags))
	for _, tag := range post.Tags {
		tagID, err := s.tagID(ctx, tx, tag)
		if err != nil {
			return false, err
		}
		resolved[tag] = tagID
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO post_tags (post_id, tag_id) VALUES (?, ?)`, post.ID, tagID); err != nil {
			return false, fmt.Errorf("failed to link tag %q to post %d: %w", tag, post.ID, err)
		}
	}

	for _, ref := range refs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media (post_id, media_url, media_type, width, height) VALUES (?, ?, ?, ?, ?)`,
			post.ID, ref.URL, ref.MediaType, nullInt(ref.Width), nullInt(ref.Height)); err != nil {
			return false, fmt.Errorf("failed to insert media for post %d: %w", post.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit post %d: %w", post.ID, err)
	}

	// Only ids from a committed transaction may be cached
	for tag, id := range resolved {
		s.tagCache.Add(tag, id)
	}
	return true, nil
}

func (s *Store) tagID(ctx context.Context, tx *sql.Tx, tag string) (int64, error) {
	if id, ok := s.tagCache.Get(tag); ok {
		return id, nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (tag_name) VALUES (?)`, tag); err != nil {
		return 0, fmt.Errorf("failed to insert tag %q: %w", tag, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE tag_name = ?`, tag).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up tag %q: %w", tag, err)
	}
	return id, nil
}

const mediaColumns = `id, post_id, media_url, local_path, media_type, width, height, original_size, downloaded`

// ListPendingMedia returns every media row not yet marked downloaded
func (s *Store) ListPendingMedia(ctx context.Context) ([]MediaItem, error) {
	return s.queryMedia(ctx, `SELECT `+mediaColumns+` FROM media WHERE downloaded = FALSE ORDER BY id`)
}

// MediaForPost returns the media rows of one post
func (s *Store) MediaForPost(ctx context.Context, postID int64) ([]MediaItem, error) {
	return s.queryMedia(ctx, `SELECT `+mediaColumns+` FROM media WHERE post_id = ? ORDER BY id`, postID)
}

func (s *Store) queryMedia(ctx context.Context, query string, args ...interface{}) ([]MediaItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		var (
			item                        MediaItem
			url, localPath, mediaType   sql.NullString
			width, height, originalSize sql.NullInt64
			downloaded                  sql.NullBool
		)
		if err := rows.Scan(&item.ID, &item.PostID, &url, &localPath, &mediaType,
			&width, &height, &originalSize, &downloaded); err != nil {
			return nil, fmt.Errorf("failed to scan media row: %w", err)
		}
		item.URL = url.String
		item.LocalPath = localPath.String
		item.MediaType = mediaType.String
		item.Width = intPtr(width)
		item.Height = intPtr(height)
		item.OriginalSize = intPtr(originalSize)
		item.Downloaded = downloaded.Bool
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read media rows: %w", err)
	}
	return items, nil
}

// MarkMediaResult sets downloaded unconditionally. localPath is recorded
// only when non-empty, so a failed attempt leaves local_path NULL.
func (s *Store) MarkMediaResult(ctx context.Context, mediaID int64, localPath string) error {
	var (
		res sql.Result
		err error
	)
	if localPath != "" {
		res, err = s.db.ExecContext(ctx,
			`UPDATE media SET local_path = ?, downloaded = TRUE WHERE id = ?`, localPath, mediaID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE media SET downloaded = TRUE WHERE id = ?`, mediaID)
	}
	if err != nil {
		return fmt.Errorf("failed to mark media %d: %w", mediaID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("media %d: %w", mediaID, ErrNotFound)
	}
	return nil
}

// ResetFailedDownloads re-queues rows whose last attempt failed and
// returns how many were reset
func (s *Store) ResetFailedDownloads(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE media SET downloaded = FALSE WHERE downloaded = TRUE AND local_path IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed downloads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset rows: %w", err)
	}
	return n, nil
}

// GetPost loads one archived post
func (s *Store) GetPost(ctx context.Context, id int64) (*PostRecord, error) {
	var (
		p                                     PostRecord
		blog, typ, state, format, date, tags  sql.NullString
		shortURL, summary, reblogKey, postURL sql.NullString
		slug, raw                             sql.NullString
		timestamp, noteCount                  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, blog_name, type, state, format, timestamp, date, tags,
		       short_url, summary, reblog_key, post_url, slug, note_count, raw_data
		FROM posts WHERE id = ?`, id).Scan(
		&p.ID, &blog, &typ, &state, &format, &timestamp, &date, &tags,
		&shortURL, &summary, &reblogKey, &postURL, &slug, &noteCount, &raw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post %d: %w", id, err)
	}

	p.BlogName, p.Type, p.State, p.Format = blog.String, typ.String, state.String, format.String
	p.Timestamp, p.Date, p.Tags = timestamp.Int64, date.String, tags.String
	p.ShortURL, p.Summary, p.ReblogKey, p.PostURL = shortURL.String, summary.String, reblogKey.String, postURL.String
	p.Slug, p.NoteCount, p.RawData = slug.String, noteCount.Int64, raw.String
	return &p, nil
}

// PostTags returns the tag names linked to a post, sorted
func (s *Store) PostTags(ctx context.Context, postID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.tag_name FROM post_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id = ?
		ORDER BY t.tag_name`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// Stats counts rows across the archive
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(DISTINCT blog_name) FROM posts),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM media),
			(SELECT COUNT(*) FROM media WHERE downloaded = TRUE AND local_path IS NOT NULL),
			(SELECT COUNT(*) FROM media WHERE downloaded = TRUE AND local_path IS NULL),
			(SELECT COUNT(*) FROM media WHERE downloaded = FALSE)`,
	).Scan(&st.Posts, &st.Blogs, &st.Tags, &st.Media, &st.MediaDownloaded, &st.MediaFailed, &st.MediaPending)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return st, nil
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
