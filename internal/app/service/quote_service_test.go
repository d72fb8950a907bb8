package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quotereel/internal/common"
	"quotereel/internal/domain/model"
	"quotereel/internal/platform/cache"
	"quotereel/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string][]byte)}
}

func (c *fakeCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.values[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = data
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

type fakeQuoteRepo struct {
	categories    []model.Category
	quotes        []model.Quote
	categoryLists int
}

func (r *fakeQuoteRepo) CreateQuote(ctx context.Context, q *model.Quote) error {
	r.quotes = append(r.quotes, *q)
	return nil
}

func (r *fakeQuoteRepo) FindQuoteBySlug(ctx context.Context, slug string) (*model.Quote, error) {
	for i := range r.quotes {
		if r.quotes[i].Slug == slug {
			return &r.quotes[i], nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeQuoteRepo) ListQuotesByCategory(ctx context.Context, categorySlug string, limit, offset int) ([]model.Quote, error) {
	return r.quotes, nil
}

func (r *fakeQuoteRepo) ListCategories(ctx context.Context) ([]model.Category, error) {
	r.categoryLists++
	return r.categories, nil
}

func (r *fakeQuoteRepo) FindCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	for i := range r.categories {
		if r.categories[i].Slug == slug {
			return &r.categories[i], nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeQuoteRepo) CountQuotesByCategory(ctx context.Context) ([]model.CategoryCount, error) {
	return []model.CategoryCount{{CategoryID: "c1", Name: "Wisdom", Quotes: len(r.quotes)}}, nil
}

func (r *fakeQuoteRepo) CountQuotes(ctx context.Context) (int, error) {
	return len(r.quotes), nil
}

func newQuoteService(repo *fakeQuoteRepo) (*QuoteService, *fakeCache) {
	c := newFakeCache()
	jobRepo := testsupport.NewMemoryRenderJobRepository()
	return NewQuoteService(repo, jobRepo, c, time.Minute), c
}

func TestListCategoriesIsMemoized(t *testing.T) {
	ctx := context.Background()
	repo := &fakeQuoteRepo{categories: []model.Category{{ID: "c1", Name: "Wisdom", Slug: "wisdom"}}}
	svc, _ := newQuoteService(repo)

	first, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.categoryLists)

	second, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.categoryLists, "second read must come from cache")
}

func TestCreateQuoteInvalidatesCaches(t *testing.T) {
	ctx := context.Background()
	repo := &fakeQuoteRepo{categories: []model.Category{{ID: "c1", Name: "Wisdom", Slug: "wisdom"}}}
	svc, _ := newQuoteService(repo)

	_, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.categoryLists)

	quote, err := svc.CreateQuote(ctx, "user-1", CreateQuoteRequest{
		Text:         "The obstacle is the way",
		Author:       "Marcus Aurelius",
		CategorySlug: "wisdom",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", quote.CategoryID)
	assert.True(t, strings.HasPrefix(quote.Slug, "the-obstacle-is-the-way"))

	_, err = svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.categoryLists, "creation must invalidate the category cache")
}

func TestCreateQuoteValidation(t *testing.T) {
	ctx := context.Background()
	repo := &fakeQuoteRepo{categories: []model.Category{{ID: "c1", Name: "Wisdom", Slug: "wisdom"}}}
	svc, _ := newQuoteService(repo)

	_, err := svc.CreateQuote(ctx, "user-1", CreateQuoteRequest{Text: "  ", CategorySlug: "wisdom"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = svc.CreateQuote(ctx, "user-1", CreateQuoteRequest{Text: "ok", CategorySlug: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestGetUsageStatsIncludesJobCounts(t *testing.T) {
	ctx := context.Background()
	repo := &fakeQuoteRepo{categories: []model.Category{{ID: "c1", Name: "Wisdom", Slug: "wisdom"}}}

	c := newFakeCache()
	jobRepo := testsupport.NewMemoryRenderJobRepository()
	require.NoError(t, jobRepo.Create(ctx, &model.RenderJob{ID: "11111111-1111-1111-1111-111111111111", Payload: []byte(`{"text":"x"}`)}))
	svc := NewQuoteService(repo, jobRepo, c, time.Minute)

	stats, err := svc.GetUsageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RenderJobs[model.JobStatePending])
	require.Len(t, stats.Categories, 1)
}
