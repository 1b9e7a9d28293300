package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"FeedCurator/internal/domain"
	"FeedCurator/internal/ports"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLRepository persists sources, content items and usage counters in
// Postgres or SQLite.
type SQLRepository struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	driver  string
}

var (
	_ ports.SourceRepository  = (*SQLRepository)(nil)
	_ ports.ContentRepository = (*SQLRepository)(nil)
	_ ports.UsageStore        = (*SQLRepository)(nil)
)

// OpenSQL connects to the database. driver accepts "postgres", "sqlite" or "sqlite3".
func OpenSQL(driver, dsn string) (*SQLRepository, error) {
	driver = normalizeDriver(driver)
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// every sqlite connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	return NewSQLRepository(db), nil
}

// NewSQLRepository wraps an open connection; the placeholder style follows db.DriverName().
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	driver := normalizeDriver(db.DriverName())
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &SQLRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
		driver:  driver,
	}
}

// Close releases the underlying pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// Migrate creates the tables when missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	ts := "TIMESTAMP"
	if r.driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			handle TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			feed_url TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 2,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_user_active ON sources (user_id, active)`,
		`CREATE TABLE IF NOT EXISTS content_items (
			id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			platform_id TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			author_handle TEXT NOT NULL DEFAULT '',
			posted_at ` + ts + ` NOT NULL,
			fetched_at ` + ts + ` NOT NULL,
			engagement INTEGER NOT NULL DEFAULT 0,
			is_breaking BOOLEAN NOT NULL DEFAULT FALSE,
			category TEXT NOT NULL DEFAULT 'general',
			media_urls TEXT NOT NULL DEFAULT '[]',
			external_url TEXT NOT NULL DEFAULT '',
			original_url TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (source_id, platform_id)
		)`,
		`CREATE TABLE IF NOT EXISTS api_usage (
			user_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			usage_date TEXT NOT NULL,
			calls_used INTEGER NOT NULL DEFAULT 0,
			updated_at ` + ts + ` NOT NULL,
			PRIMARY KEY (user_id, platform, usage_date)
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var sourceColumns = []string{
	"id", "user_id", "kind", "handle", "display_name", "feed_url", "priority", "active", "updated_at",
}

// SaveSource upserts a source by ID.
func (r *SQLRepository) SaveSource(ctx context.Context, source domain.Source) error {
	if err := source.Validate(); err != nil {
		return err
	}
	if source.UpdatedAt.IsZero() {
		source.UpdatedAt = time.Now()
	}

	query, args, err := r.builder.
		Insert("sources").
		Columns(sourceColumns...).
		Values(source.ID, source.UserID, string(source.Kind), source.Handle, source.DisplayName,
			source.FeedURL, source.Priority, source.Active, source.UpdatedAt.UTC()).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			kind = EXCLUDED.kind,
			handle = EXCLUDED.handle,
			display_name = EXCLUDED.display_name,
			feed_url = EXCLUDED.feed_url,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build source upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

// ActiveSources returns the user's active sources ordered by priority then ID.
func (r *SQLRepository) ActiveSources(ctx context.Context, userID string) ([]domain.Source, error) {
	query, args, err := r.builder.
		Select(sourceColumns...).
		From("sources").
		Where(sq.Eq{"user_id": userID, "active": true}).
		OrderBy("priority ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active sources: %w", err)
	}

	sources := make([]domain.Source, 0)
	if err := r.db.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, fmt.Errorf("query active sources: %w", err)
	}
	sortSources(sources)
	return sources, nil
}

// UsersWithActiveSources lists every user owning at least one active source.
func (r *SQLRepository) UsersWithActiveSources(ctx context.Context) ([]string, error) {
	query, args, err := r.builder.
		Select("user_id").
		Distinct().
		From("sources").
		Where(sq.Eq{"active": true}).
		OrderBy("user_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build users query: %w", err)
	}

	users := make([]string, 0)
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return users, nil
}

type contentRow struct {
	ID           string    `db:"id"`
	SourceID     string    `db:"source_id"`
	PlatformID   string    `db:"platform_id"`
	Text         string    `db:"text"`
	Summary      string    `db:"summary"`
	AuthorHandle string    `db:"author_handle"`
	PostedAt     time.Time `db:"posted_at"`
	FetchedAt    time.Time `db:"fetched_at"`
	Engagement   int       `db:"engagement"`
	IsBreaking   bool      `db:"is_breaking"`
	Category     string    `db:"category"`
	MediaURLs    string    `db:"media_urls"`
	ExternalURL  string    `db:"external_url"`
	OriginalURL  string    `db:"original_url"`
}

func (row contentRow) toDomain() (domain.ContentItem, error) {
	item := domain.ContentItem{
		ID:           row.ID,
		SourceID:     row.SourceID,
		PlatformID:   row.PlatformID,
		Text:         row.Text,
		Summary:      row.Summary,
		AuthorHandle: row.AuthorHandle,
		PostedAt:     row.PostedAt.UTC(),
		FetchedAt:    row.FetchedAt.UTC(),
		Engagement:   row.Engagement,
		IsBreaking:   row.IsBreaking,
		Category:     domain.Category(row.Category),
		ExternalURL:  row.ExternalURL,
		OriginalURL:  row.OriginalURL,
	}
	if err := json.Unmarshal([]byte(row.MediaURLs), &item.MediaURLs); err != nil {
		return domain.ContentItem{}, fmt.Errorf("decode media urls of %s: %w", item.Key(), err)
	}
	return item, nil
}

var contentColumns = []string{
	"id", "source_id", "platform_id", "text", "summary", "author_handle", "posted_at", "fetched_at",
	"engagement", "is_breaking", "category", "media_urls", "external_url", "original_url",
}

// UpsertContent inserts the item or refreshes the stored copy under the same
// (source_id, platform_id). It reports whether a new row was created.
func (r *SQLRepository) UpsertContent(ctx context.Context, item domain.ContentItem) (bool, error) {
	media := item.MediaURLs
	if media == nil {
		media = []string{}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return false, fmt.Errorf("encode media urls: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin content upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existsQuery, existsArgs, err := r.builder.
		Select("1").
		From("content_items").
		Where(sq.Eq{"source_id": item.SourceID, "platform_id": item.PlatformID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	inserted := false
	switch err := tx.GetContext(ctx, &one, existsQuery, existsArgs...); {
	case errors.Is(err, sql.ErrNoRows):
		inserted = true
	case err != nil:
		return false, fmt.Errorf("check content exists: %w", err)
	}

	query, args, err := r.builder.
		Insert("content_items").
		Columns(contentColumns...).
		Values(item.ID, item.SourceID, item.PlatformID, item.Text, item.Summary, item.AuthorHandle,
			item.PostedAt.UTC(), item.FetchedAt.UTC(), item.Engagement, item.IsBreaking,
			string(item.Category), string(mediaJSON), item.ExternalURL, item.OriginalURL).
		Suffix(`ON CONFLICT (source_id, platform_id) DO UPDATE SET
			text = EXCLUDED.text,
			summary = EXCLUDED.summary,
			author_handle = EXCLUDED.author_handle,
			posted_at = EXCLUDED.posted_at,
			fetched_at = EXCLUDED.fetched_at,
			engagement = EXCLUDED.engagement,
			is_breaking = EXCLUDED.is_breaking,
			category = EXCLUDED.category,
			media_urls = EXCLUDED.media_urls,
			external_url = EXCLUDED.external_url,
			original_url = EXCLUDED.original_url`).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build content upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("upsert content %s: %w", item.Key(), err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit content upsert: %w", err)
	}
	return inserted, nil
}

// ListForUser returns the user's ranked feed.
func (r *SQLRepository) ListForUser(ctx context.Context, userID string, limit int) ([]domain.ContentItem, error) {
	cols := make([]string, len(contentColumns))
	for i, c := range contentColumns {
		cols[i] = "c." + c
	}

	builder := r.builder.
		Select(cols...).
		From("content_items c").
		Join("sources s ON s.id = c.source_id").
		Where(sq.Eq{"s.user_id": userID}).
		OrderBy("c.is_breaking DESC", "c.engagement DESC", "c.posted_at DESC", "c.source_id", "c.platform_id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build feed query: %w", err)
	}

	var rows []contentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}

	items := make([]domain.ContentItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Usage returns calls_used for the given day, zero when no record exists.
func (r *SQLRepository) Usage(ctx context.Context, userID, platform, date string) (int, error) {
	query, args, err := r.builder.
		Select("calls_used").
		From("api_usage").
		Where(sq.Eq{"user_id": userID, "platform": platform, "usage_date": date}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build usage query: %w", err)
	}

	var used int
	if err := r.db.GetContext(ctx, &used, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query usage: %w", err)
	}
	return used, nil
}

// Increment creates the day's record at 1 or adds one to it in a single statement.
func (r *SQLRepository) Increment(ctx context.Context, userID, platform, date string) error {
	query, args, err := r.builder.
		Insert("api_usage").
		Columns("user_id", "platform", "usage_date", "calls_used", "updated_at").
		Values(userID, platform, date, 1, time.Now().UTC()).
		Suffix(`ON CONFLICT (user_id, platform, usage_date) DO UPDATE SET
			calls_used = api_usage.calls_used + 1,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build usage increment: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql":
		return DriverPostgres
	default:
		return driver
	}
}
