package reviews

import "storefront/internal/domain"

// Engine keeps facet selections for one review list and derives views from them.
// It is not safe for concurrent use.
type Engine struct {
	reviews []domain.Review
	filter  Filter
}

// NewEngine creates an engine over reviews with no facet selected
func NewEngine(reviews []domain.Review) *Engine {
	return &Engine{reviews: append([]domain.Review(nil), reviews...)}
}

// SetReviews replaces the underlying review list, keeping the selections
func (e *Engine) SetReviews(reviews []domain.Review) {
	e.reviews = append([]domain.Review(nil), reviews...)
}

// Filter returns the current selections
func (e *Engine) Filter() Filter {
	return e.filter
}

// ToggleRating selects rating r, or clears the rating facet when r is already selected.
// Values outside 1..5 are ignored.
func (e *Engine) ToggleRating(r int) {
	if r < 1 || r > 5 {
		return
	}
	if e.filter.Rating == r {
		e.filter.Rating = 0
		return
	}
	e.filter.Rating = r
}

// ToggleSize selects size s, or clears the size facet when s is already selected
func (e *Engine) ToggleSize(s domain.Size) {
	if e.filter.Size == s {
		e.filter.Size = ""
		return
	}
	e.filter.Size = s
}

// ToggleImageOnly flips the with-image facet
func (e *Engine) ToggleImageOnly() {
	e.filter.ImageOnly = !e.filter.ImageOnly
}

// SetDateOrder sets the createdAt ordering
func (e *Engine) SetDateOrder(o DateOrder) {
	e.filter.DateOrder = o
}

// Reset clears every facet
func (e *Engine) Reset() {
	e.filter = Filter{}
}

// Filtered returns the reviews matching the current selections
func (e *Engine) Filtered() []domain.Review {
	return Apply(e.reviews, e.filter)
}

// CountAll returns the number of reviews regardless of selections
func (e *Engine) CountAll() int {
	return len(e.reviews)
}

// CountWithImage counts reviews with an image under the rating and size facets
func (e *Engine) CountWithImage() int {
	f := e.filter
	return count(e.reviews, func(r *domain.Review) bool {
		return r.HasImage() && f.matchRating(r) && f.matchSize(r)
	})
}

// CountByRating counts reviews rated n under the size and image facets
func (e *Engine) CountByRating(n int) int {
	f := e.filter
	return count(e.reviews, func(r *domain.Review) bool {
		return r.Rating == n && f.matchSize(r) && f.matchImage(r)
	})
}

// CountBySize counts reviews for size s under the rating and image facets
func (e *Engine) CountBySize(s domain.Size) int {
	f := e.filter
	return count(e.reviews, func(r *domain.Review) bool {
		return r.Size == s && f.matchRating(r) && f.matchImage(r)
	})
}

// Page is one page of filtered reviews
type Page struct {
	Reviews    []domain.Review
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// Page returns the 1-based page of filtered reviews. Out-of-range pages are clamped.
func (e *Engine) Page(page, perPage int) Page {
	filtered := e.Filtered()
	if perPage < 1 {
		perPage = 10
	}

	totalPages := (len(filtered) + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	return Page{
		Reviews:    filtered[start:end],
		Page:       page,
		PerPage:    perPage,
		Total:      len(filtered),
		TotalPages: totalPages,
	}
}
