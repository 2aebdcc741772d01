package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"sjsage522/jobworker/internal/crawler"
	"sjsage522/jobworker/logger"
	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

const (
	schemaVersion = 1
	dateLayout    = "2006-01-02"
)

// Store persists job records in SQLite, keyed by URL. Inserting a URL that is
// already stored is a no-op, so repeated and concurrent runs never duplicate.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

// Filter narrows ListJobs. Zero values mean no constraint.
type Filter struct {
	Source string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// Stats summarizes the stored postings
type Stats struct {
	Total     int `db:"total"`
	Sources   int `db:"sources"`
	Companies int `db:"companies"`
	Locations int `db:"locations"`
}

type jobRow struct {
	ID         int64          `db:"id"`
	Source     string         `db:"source"`
	Title      string         `db:"title"`
	Company    string         `db:"company"`
	Location   string         `db:"location"`
	DatePosted sql.NullString `db:"date_posted"`
	URL        string         `db:"url"`
	ScrapedAt  string         `db:"scraped_at"`
}

// Open opens (creating if needed) the database file at path. Separate
// processes may open the same file; writers wait on each other through the
// busy timeout.
func Open(path string) (*Store, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, scrapeerrors.NewStorage("open database", err)
	}

	// sqlite typically wants 1 writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, scrapeerrors.NewStorage("ping database", err)
	}

	return &Store{db: db, log: logger.ForStore()}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the jobs table and its indexes. It is safe to call
// before every run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return scrapeerrors.NewStorage("begin schema transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.GetContext(ctx, &v, `PRAGMA user_version;`); err != nil {
		return scrapeerrors.NewStorage("read schema version", err)
	}
	if v >= schemaVersion {
		return tx.Commit()
	}

	statements := []string{`
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  title TEXT NOT NULL,
  company TEXT NOT NULL,
  location TEXT NOT NULL,
  date_posted TEXT,
  url TEXT NOT NULL UNIQUE,
  scraped_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`, `
CREATE INDEX IF NOT EXISTS idx_jobs_source
ON jobs(source);`, `
CREATE INDEX IF NOT EXISTS idx_jobs_date_posted
ON jobs(date_posted);`,
		fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion),
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return scrapeerrors.NewStorage("apply schema", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return scrapeerrors.NewStorage("commit schema", err)
	}
	s.log.Debug().Int("version", schemaVersion).Msg("Schema applied")
	return nil
}

// Insert stores rec unless its URL is already present. It reports whether a
// row was written and, when it was, fills rec.ID and rec.ScrapedAt.
func (s *Store) Insert(ctx context.Context, rec *crawler.JobRecord) (bool, error) {
	if strings.TrimSpace(rec.URL) == "" {
		return false, scrapeerrors.NewValidation(rec.Source, "record has no url")
	}

	var datePosted sql.NullString
	if rec.DatePosted != nil {
		datePosted = sql.NullString{String: rec.DatePosted.Format(dateLayout), Valid: true}
	}

	var (
		id        int64
		scrapedAt string
	)
	err := s.db.QueryRowxContext(ctx, `
INSERT INTO jobs (source, title, company, location, date_posted, url)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO NOTHING
RETURNING id, scraped_at;`,
		rec.Source, rec.Title, rec.Company, rec.Location, datePosted, rec.URL,
	).Scan(&id, &scrapedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, scrapeerrors.NewStorage("insert job", err)
	}

	rec.ID = id
	rec.ScrapedAt = parseTimestamp(scrapedAt)
	return true, nil
}

// ListJobs returns stored postings, most recently scraped first
func (s *Store) ListJobs(ctx context.Context, f Filter) ([]crawler.JobRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.From != nil {
		where = append(where, "date_posted >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if f.To != nil {
		where = append(where, "date_posted <= ?")
		args = append(args, f.To.Format(dateLayout))
	}

	query := `SELECT id, source, title, company, location, date_posted, url, scraped_at FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scraped_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, scrapeerrors.NewStorage("list jobs", err)
	}

	jobs := make([]crawler.JobRecord, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.record())
	}
	return jobs, nil
}

// Stats counts postings and the distinct sources, companies and locations
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.GetContext(ctx, &st, `
SELECT
  COUNT(*) AS total,
  COUNT(DISTINCT source) AS sources,
  COUNT(DISTINCT company) AS companies,
  COUNT(DISTINCT location) AS locations
FROM jobs;`)
	if err != nil {
		return Stats{}, scrapeerrors.NewStorage("stats", err)
	}
	return st, nil
}

func (r jobRow) record() crawler.JobRecord {
	rec := crawler.JobRecord{
		ID:        r.ID,
		Source:    r.Source,
		Title:     r.Title,
		Company:   r.Company,
		Location:  r.Location,
		URL:       r.URL,
		ScrapedAt: parseTimestamp(r.ScrapedAt),
	}
	if r.DatePosted.Valid {
		if d, err := time.Parse(dateLayout, r.DatePosted.String); err == nil {
			rec.DatePosted = &d
		}
	}
	return rec
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
