package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"quotereel/internal/common"
	"quotereel/internal/domain/model"
	"quotereel/internal/domain/repository"
	"quotereel/internal/platform/cache"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const (
	cacheKeyCategories = "cache:categories"
	cacheKeyStats      = "cache:stats"
)

// QuoteService serves the read-mostly quote/category/statistics paths. The
// listings are memoized in the cache with an explicit TTL and invalidated when
// a quote is created.
type QuoteService struct {
	quoteRepo repository.QuoteRepository
	jobRepo   repository.RenderJobRepository
	cache     cache.Cache
	ttl       time.Duration
}

func NewQuoteService(quoteRepo repository.QuoteRepository, jobRepo repository.RenderJobRepository, c cache.Cache, ttl time.Duration) *QuoteService {
	return &QuoteService{quoteRepo: quoteRepo, jobRepo: jobRepo, cache: c, ttl: ttl}
}

type CreateQuoteRequest struct {
	Text         string `json:"text"`
	Author       string `json:"author"`
	CategorySlug string `json:"category_slug"`
}

func (s *QuoteService) CreateQuote(ctx context.Context, userID string, req CreateQuoteRequest) (*model.Quote, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, common.Errorf("quote text is required: %w", common.ErrValidation)
	}
	category, err := s.quoteRepo.FindCategoryBySlug(ctx, req.CategorySlug)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.Errorf("unknown category %q: %w", req.CategorySlug, common.ErrValidation)
		}
		return nil, err
	}

	id := uuid.NewString()
	quote := &model.Quote{
		ID:         id,
		Text:       req.Text,
		Author:     req.Author,
		CategoryID: category.ID,
		Slug:       quoteSlug(req.Text, id),
		CreatedBy:  userID,
	}
	if err := s.quoteRepo.CreateQuote(ctx, quote); err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, cacheKeyCategories, cacheKeyStats); err != nil {
		log.Printf("WARN: cache invalidation failed: %v", err)
	}
	return quote, nil
}

func (s *QuoteService) ListQuotes(ctx context.Context, categorySlug string, limit, offset int) ([]model.Quote, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.quoteRepo.ListQuotesByCategory(ctx, categorySlug, limit, offset)
}

func (s *QuoteService) GetQuote(ctx context.Context, slug string) (*model.Quote, error) {
	return s.quoteRepo.FindQuoteBySlug(ctx, slug)
}

// ListCategories returns the category listing, served from cache when fresh.
func (s *QuoteService) ListCategories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := s.cache.GetJSON(ctx, cacheKeyCategories, &categories); err == nil {
		return categories, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Printf("WARN: category cache read failed: %v", err)
	}

	categories, err := s.quoteRepo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, cacheKeyCategories, categories, s.ttl); err != nil {
		log.Printf("WARN: category cache write failed: %v", err)
	}
	return categories, nil
}

// GetUsageStats aggregates quote and render-job counters, cached with the
// same TTL as the category listing.
func (s *QuoteService) GetUsageStats(ctx context.Context) (*model.UsageStats, error) {
	var stats model.UsageStats
	if err := s.cache.GetJSON(ctx, cacheKeyStats, &stats); err == nil {
		return &stats, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Printf("WARN: stats cache read failed: %v", err)
	}

	total, err := s.quoteRepo.CountQuotes(ctx)
	if err != nil {
		return nil, err
	}
	perCategory, err := s.quoteRepo.CountQuotesByCategory(ctx)
	if err != nil {
		return nil, err
	}
	jobCounts, err := s.jobRepo.CountByState(ctx)
	if err != nil {
		return nil, err
	}

	stats = model.UsageStats{
		TotalQuotes: total,
		Categories:  perCategory,
		RenderJobs:  jobCounts,
	}
	if err := s.cache.SetJSON(ctx, cacheKeyStats, stats, s.ttl); err != nil {
		log.Printf("WARN: stats cache write failed: %v", err)
	}
	return &stats, nil
}

// quoteSlug builds a URL slug from the leading words of the quote plus a short
// id suffix for uniqueness.
func quoteSlug(text, id string) string {
	words := strings.Fields(text)
	if len(words) > 6 {
		words = words[:6]
	}
	base := slug.Make(strings.Join(words, " "))
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "-" + suffix
}
