package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quotereel/internal/common"
	"quotereel/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type QuoteRepository interface {
	CreateQuote(ctx context.Context, quote *model.Quote) error
	FindQuoteBySlug(ctx context.Context, slug string) (*model.Quote, error)
	ListQuotesByCategory(ctx context.Context, categorySlug string, limit, offset int) ([]model.Quote, error)

	ListCategories(ctx context.Context) ([]model.Category, error)
	FindCategoryBySlug(ctx context.Context, slug string) (*model.Category, error)

	CountQuotesByCategory(ctx context.Context) ([]model.CategoryCount, error)
	CountQuotes(ctx context.Context) (int, error)
}

type pgQuoteRepository struct {
	db *sql.DB
}

func NewPgQuoteRepository(db *sql.DB) QuoteRepository {
	return &pgQuoteRepository{db: db}
}

func (r *pgQuoteRepository) CreateQuote(ctx context.Context, q *model.Quote) error {
	query := `INSERT INTO quotes (id, text, author, category_id, slug, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, q.ID, q.Text, q.Author, q.CategoryID, q.Slug, q.CreatedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("quote with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgQuoteRepository.CreateQuote: %w", err)
	}
	return nil
}

func (r *pgQuoteRepository) FindQuoteBySlug(ctx context.Context, slug string) (*model.Quote, error) {
	return r.findQuote(ctx, `slug = $1`, slug)
}

func (r *pgQuoteRepository) findQuote(ctx context.Context, where string, arg any) (*model.Quote, error) {
	query := `SELECT id, text, author, category_id, slug, created_by, created_at, updated_at
	          FROM quotes WHERE ` + where
	q := &model.Quote{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&q.ID, &q.Text, &q.Author, &q.CategoryID, &q.Slug, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgQuoteRepository.findQuote: %w", err)
	}
	return q, nil
}

func (r *pgQuoteRepository) ListQuotesByCategory(ctx context.Context, categorySlug string, limit, offset int) ([]model.Quote, error) {
	query := `SELECT q.id, q.text, q.author, q.category_id, q.slug, q.created_by, q.created_at, q.updated_at
	          FROM quotes q
	          JOIN categories c ON c.id = q.category_id
	          WHERE c.slug = $1
	          ORDER BY q.created_at DESC
	          LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, categorySlug, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pgQuoteRepository.ListQuotesByCategory: %w", err)
	}
	defer rows.Close()

	var quotes []model.Quote
	for rows.Next() {
		var q model.Quote
		if err := rows.Scan(&q.ID, &q.Text, &q.Author, &q.CategoryID, &q.Slug, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgQuoteRepository.ListQuotesByCategory: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func (r *pgQuoteRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	query := `SELECT id, name, slug, created_at FROM categories ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgQuoteRepository.ListCategories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgQuoteRepository.ListCategories: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *pgQuoteRepository) FindCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	query := `SELECT id, name, slug, created_at FROM categories WHERE slug = $1`
	c := &model.Category{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgQuoteRepository.FindCategoryBySlug: %w", err)
	}
	return c, nil
}

func (r *pgQuoteRepository) CountQuotesByCategory(ctx context.Context) ([]model.CategoryCount, error) {
	query := `SELECT c.id, c.name, COUNT(q.id)
	          FROM categories c
	          LEFT JOIN quotes q ON q.category_id = c.id
	          GROUP BY c.id, c.name
	          ORDER BY c.name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgQuoteRepository.CountQuotesByCategory: %w", err)
	}
	defer rows.Close()

	var counts []model.CategoryCount
	for rows.Next() {
		var cc model.CategoryCount
		if err := rows.Scan(&cc.CategoryID, &cc.Name, &cc.Quotes); err != nil {
			return nil, fmt.Errorf("pgQuoteRepository.CountQuotesByCategory: %w", err)
		}
		counts = append(counts, cc)
	}
	return counts, rows.Err()
}

func (r *pgQuoteRepository) CountQuotes(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM quotes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgQuoteRepository.CountQuotes: %w", err)
	}
	return count, nil
}
