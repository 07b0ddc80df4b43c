package registry

import (
	"context"

	"regcheck/internal/descriptor"
)

// Walk lists the registry page by page, handing each page to fn until fn
// returns false, a page comes back empty or the reported total has been
// seen. It returns the last reported total and the number of entries seen.
func Walk(ctx context.Context, reg Registry, perPage int, fn func(*descriptor.Index) bool) (total, seen int, err error) {
	for page := 1; ; page++ {
		idx, err := reg.List(ctx, page, perPage)
		if err != nil {
			return total, seen, err
		}
		total = idx.Total
		seen += len(idx.Services)
		if !fn(idx) || len(idx.Services) == 0 || seen >= idx.Total {
			return total, seen, nil
		}
	}
}

// ListAll collects every listed entry.
func ListAll(ctx context.Context, reg Registry, perPage int) ([]descriptor.Service, int, error) {
	var all []descriptor.Service
	total, _, err := Walk(ctx, reg, perPage, func(idx *descriptor.Index) bool {
		all = append(all, idx.Services...)
		return true
	})
	return all, total, err
}

// FindByName returns the first listed entry named name, or nil when no
// entry carries it.
func FindByName(ctx context.Context, reg Registry, name string, perPage int) (*descriptor.Service, int, error) {
	var found *descriptor.Service
	total, _, err := Walk(ctx, reg, perPage, func(idx *descriptor.Index) bool {
		found, _ = idx.FindByName(name)
		return found == nil
	})
	return found, total, err
}
