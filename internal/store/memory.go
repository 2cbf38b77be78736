package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nitesh/meal_service/internal/apperr"
	"github.com/nitesh/meal_service/pkg/models"
)

// MemStore is an in-process store with the same semantics as PgStore. It
// backs tests and the service when db.driver is memory.
type MemStore struct {
	mu       sync.RWMutex
	listings map[string]*models.Listing
	users    map[string]*models.User
}

func NewMemStore() *MemStore {
	return &MemStore{
		listings: map[string]*models.Listing{},
		users:    map[string]*models.User{},
	}
}

func cloneListing(l *models.Listing) *models.Listing {
	c := *l
	c.Photos = append(c.Photos[:0:0], l.Photos...)
	c.AllergenInfo.Contains = append(c.AllergenInfo.Contains[:0:0], l.AllergenInfo.Contains...)
	c.AllergenInfo.MayContain = append(c.AllergenInfo.MayContain[:0:0], l.AllergenInfo.MayContain...)
	c.SwapPreferences = append(c.SwapPreferences[:0:0], l.SwapPreferences...)
	return &c
}

func (m *MemStore) FindListings(ctx context.Context, f models.ListingFilter, skip, limit int) ([]*models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("find listings", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		if filterMatches(f, l) {
			matched = append(matched, l)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if skip < 0 {
		skip = 0
	}
	if skip > len(matched) {
		skip = len(matched)
	}
	matched = matched[skip:]
	if limit >= 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]*models.Listing, len(matched))
	for i, l := range matched {
		out[i] = cloneListing(l)
	}
	return out, nil
}

// filterMatches mirrors the predicate buildFindListings renders in SQL.
func filterMatches(f models.ListingFilter, l *models.Listing) bool {
	switch {
	case f.Status != "" && l.Status != f.Status:
		return false
	case f.CuisineType != "" && l.CuisineType != f.CuisineType:
		return false
	case f.MealType != "" && l.MealType != f.MealType:
		return false
	case f.MaxPrice != nil && (l.SalePrice == nil || *l.SalePrice > *f.MaxPrice):
		return false
	case f.AvailableForSale != nil && l.AvailableForSale != *f.AvailableForSale:
		return false
	case f.AvailableForSwap != nil && l.AvailableForSwap != *f.AvailableForSwap:
		return false
	case f.MinRating != nil && l.AverageRating < *f.MinRating:
		return false
	case f.SellerID != "" && l.SellerID != f.SellerID:
		return false
	case f.ExcludeSellerID != "" && l.SellerID == f.ExcludeSellerID:
		return false
	}

	for _, a := range f.ExcludeAllergens {
		for _, c := range l.AllergenInfo.Contains {
			if a == c {
				return false
			}
		}
	}
	ingredients := strings.ToLower(l.Ingredients)
	for _, ing := range f.ExcludeIngredients {
		ing = strings.ToLower(strings.TrimSpace(ing))
		if ing != "" && strings.Contains(ingredients, ing) {
			return false
		}
	}
	return true
}

func (m *MemStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	if err := parseID("listing", id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, apperr.NotFound("listing")
	}
	return cloneListing(l), nil
}

func (m *MemStore) IncrementViews(ctx context.Context, id string) error {
	if err := parseID("listing", id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return apperr.NotFound("listing")
	}
	l.Views++
	return nil
}

func (m *MemStore) CreateListing(ctx context.Context, l *models.Listing) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = cloneListing(l)
	return nil
}

func (m *MemStore) UpdateListing(ctx context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.listings[l.ID]
	if !ok {
		return apperr.NotFound("listing")
	}
	next := cloneListing(l)
	// counters and ratings belong to other writers
	next.Views = cur.Views
	next.AverageRating = cur.AverageRating
	next.TotalReviews = cur.TotalReviews
	next.SellerID = cur.SellerID
	next.SellerLocation = cur.SellerLocation
	next.CreatedAt = cur.CreatedAt
	m.listings[l.ID] = next
	return nil
}

func (m *MemStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := parseID("user", id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	c := *u
	return &c, nil
}

func (m *MemStore) SaveUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *u
	m.users[u.ID] = &c
	return nil
}

// DeleteUser removes a user, leaving any listings that reference it.
func (m *MemStore) DeleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *MemStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
