package model

// CategoryCount is one row of the per-category usage statistics.
type CategoryCount struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Quotes     int    `json:"quotes"`
}

// UsageStats aggregates read-mostly counters served from the cache.
type UsageStats struct {
	TotalQuotes int              `json:"total_quotes"`
	Categories  []CategoryCount  `json:"categories"`
	RenderJobs  map[JobState]int `json:"render_jobs"`
}
