package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lifelonglearners/tortoise/internal/model"
)

const bookColumns = `id, title, author, description, tags, language, format, difficulty_level, created_by, created_at`

// BookFilter narrows ListBooks. Empty fields and the value "all" match everything.
type BookFilter struct {
	Search     string // case-insensitive match on title, author and description
	Language   string
	Format     string
	Difficulty string
	Tags       []string // any overlap
	Limit      int
	Offset     int
}

func scanBook(row pgx.Row) (model.Book, error) {
	var b model.Book
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Description, &b.Tags, &b.Language,
		&b.Format, &b.DifficultyLevel, &b.CreatedBy, &b.CreatedAt,
	)
	return b, err
}

func collectBooks(rows pgx.Rows) ([]model.Book, error) {
	defer rows.Close()
	var books []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// CreateBook inserts a catalog entry.
func (db *DB) CreateBook(ctx context.Context, b model.Book) (model.Book, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if b.Language == "" {
		b.Language = model.DefaultLanguage
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO books (id, title, author, description, tags, language, format, difficulty_level, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.Title, b.Author, b.Description, b.Tags, b.Language,
		string(b.Format), b.DifficultyLevel, b.CreatedBy, b.CreatedAt,
	)
	if err != nil {
		return model.Book{}, fmt.Errorf("storage: create book: %w", err)
	}
	return b, nil
}

// GetBook retrieves a book by id.
func (db *DB) GetBook(ctx context.Context, id uuid.UUID) (model.Book, error) {
	b, err := scanBook(db.pool.QueryRow(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Book{}, fmt.Errorf("storage: book %s: %w", id, ErrNotFound)
		}
		return model.Book{}, fmt.Errorf("storage: get book: %w", err)
	}
	return b, nil
}

// ListBooks returns books matching the filter, newest first.
func (db *DB) ListBooks(ctx context.Context, f BookFilter) ([]model.Book, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("(title ILIKE $%[1]d OR author ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+escapeLike(s)+"%")
	}
	if isFilter(f.Language) {
		add("language = $%d", f.Language)
	}
	if isFilter(f.Format) {
		add("format = $%d", f.Format)
	}
	if isFilter(f.Difficulty) {
		add("difficulty_level = $%d", f.Difficulty)
	}
	if len(f.Tags) > 0 {
		add("tags && $%d", f.Tags)
	}

	q := `SELECT ` + bookColumns + ` FROM books`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	q, args = paginate(q, args, f.Limit, f.Offset)

	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list books: %w", err)
	}
	return collectBooks(rows)
}

// AllBooks returns the whole catalog, newest first. The catalog is small
// enough to fuzzy-match in memory.
func (db *DB) AllBooks(ctx context.Context) ([]model.Book, error) {
	return db.ListBooks(ctx, BookFilter{})
}

// GetBooksByIDs returns the books with the given ids, in the order of ids.
// Missing ids are skipped.
func (db *DB) GetBooksByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get books by ids: %w", err)
	}
	books, err := collectBooks(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	ordered := make([]model.Book, 0, len(books))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			ordered = append(ordered, b)
		}
	}
	return ordered, nil
}

// CountBooks returns the size of the catalog.
func (db *DB) CountBooks(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count books: %w", err)
	}
	return n, nil
}

// isFilter reports whether a filter value restricts results.
func isFilter(v string) bool {
	return v != "" && !strings.EqualFold(v, "all")
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func paginate(q string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		q += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	return q, args
}
