// Package reviews computes filtered, sorted and counted views over a product's reviews.
package reviews

import (
	"sort"

	"storefront/internal/domain"
)

// DateOrder selects the createdAt ordering of filtered reviews
type DateOrder string

const (
	OrderDefault DateOrder = ""
	OrderLatest  DateOrder = "latest"
	OrderOldest  DateOrder = "oldest"
)

// Filter holds the active facet selections. The zero value selects everything, latest first.
type Filter struct {
	Rating    int
	Size      domain.Size
	ImageOnly bool
	DateOrder DateOrder
}

func (f Filter) matchRating(r *domain.Review) bool {
	return f.Rating == 0 || r.Rating == f.Rating
}

func (f Filter) matchSize(r *domain.Review) bool {
	return f.Size == "" || r.Size == f.Size
}

func (f Filter) matchImage(r *domain.Review) bool {
	return !f.ImageOnly || r.HasImage()
}

// Match reports whether r passes every active facet
func (f Filter) Match(r *domain.Review) bool {
	return f.matchRating(r) && f.matchSize(r) && f.matchImage(r)
}

// Apply returns the reviews matching f, sorted by createdAt according to f.DateOrder.
// The input slice is not modified.
func Apply(reviews []domain.Review, f Filter) []domain.Review {
	out := make([]domain.Review, 0, len(reviews))
	for i := range reviews {
		if f.Match(&reviews[i]) {
			out = append(out, reviews[i])
		}
	}

	if f.DateOrder == OrderOldest {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

func count(reviews []domain.Review, match func(*domain.Review) bool) int {
	n := 0
	for i := range reviews {
		if match(&reviews[i]) {
			n++
		}
	}
	return n
}
