package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nitesh/meal_service/internal/apperr"
	dbtypes "github.com/nitesh/meal_service/internal/db"
	"github.com/nitesh/meal_service/internal/dietary"
	"github.com/nitesh/meal_service/internal/discovery"
	"github.com/nitesh/meal_service/internal/logging"
	"github.com/nitesh/meal_service/internal/metrics"
	"github.com/nitesh/meal_service/pkg/models"
)

// myListingsCap bounds the "my listings" page.
const myListingsCap = 100

type ListingStore interface {
	discovery.ListingFinder
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	IncrementViews(ctx context.Context, id string) error
	CreateListing(ctx context.Context, l *models.Listing) error
	UpdateListing(ctx context.Context, l *models.Listing) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}

type Service struct {
	listings ListingStore
	users    UserStore
	engine   *discovery.Engine
	now      func() time.Time
}

func NewService(listings ListingStore, users UserStore, opts discovery.Options) *Service {
	return &Service{
		listings: listings,
		users:    users,
		engine:   discovery.NewEngine(listings, users, opts),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListingInput is the body of a create request.
type ListingInput struct {
	Title              string              `json:"title" binding:"required,max=200"`
	Description        string              `json:"description" binding:"max=4000"`
	CuisineType        string              `json:"cuisine_type" binding:"required"`
	MealType           string              `json:"meal_type" binding:"required"`
	Ingredients        string              `json:"ingredients"`
	Photos             []string            `json:"photos"`
	AllergenInfo       models.AllergenInfo `json:"allergen_info"`
	PortionSize        string              `json:"portion_size"`
	AvailableForSale   bool                `json:"available_for_sale"`
	SalePrice          *float64            `json:"sale_price" binding:"omitempty,gte=0"`
	AvailableForSwap   bool                `json:"available_for_swap"`
	SwapPreferences    []string            `json:"swap_preferences"`
	PreparationDate    time.Time           `json:"preparation_date"`
	ExpiresDate        time.Time           `json:"expires_date" binding:"required"`
	PickupInstructions string              `json:"pickup_instructions"`
}

// ListingPatch is the body of an update request; nil fields are left as is.
type ListingPatch struct {
	Title              *string              `json:"title" binding:"omitempty,min=1,max=200"`
	Description        *string              `json:"description" binding:"omitempty,max=4000"`
	CuisineType        *string              `json:"cuisine_type"`
	MealType           *string              `json:"meal_type"`
	Ingredients        *string              `json:"ingredients"`
	Photos             []string             `json:"photos"`
	AllergenInfo       *models.AllergenInfo `json:"allergen_info"`
	PortionSize        *string              `json:"portion_size"`
	AvailableForSale   *bool                `json:"available_for_sale"`
	SalePrice          *float64             `json:"sale_price" binding:"omitempty,gte=0"`
	AvailableForSwap   *bool                `json:"available_for_swap"`
	SwapPreferences    []string             `json:"swap_preferences"`
	Status             *string              `json:"status"`
	PickupInstructions *string              `json:"pickup_instructions"`
}

// validateOffer enforces that a listing is offered one way or another and
// that a sale always carries a non-negative price.
func validateOffer(l *models.Listing) error {
	if !l.AvailableForSale && !l.AvailableForSwap {
		return apperr.Invalid("listing must be available for sale, for swap, or both")
	}
	if l.AvailableForSale && l.SalePrice == nil {
		return apperr.Invalid("sale_price is required when available_for_sale is true")
	}
	if l.SalePrice != nil && *l.SalePrice < 0 {
		return apperr.Invalid("sale_price must not be negative")
	}
	return nil
}

func validStatus(s string) bool {
	switch s {
	case models.StatusAvailable, models.StatusReserved, models.StatusExpired, models.StatusRemoved:
		return true
	}
	return false
}

func owned(l *models.Listing, actor *models.User) models.RankedResult {
	return models.RankedResult{Listing: l, SellerName: actor.FullName, SellerRating: actor.AverageRating}
}

// Create stores a new listing for actor, snapshotting actor's location.
func (s *Service) Create(ctx context.Context, actor *models.User, in ListingInput) (*models.RankedResult, error) {
	now := s.now()
	l := &models.Listing{
		SellerID:           actor.ID,
		Title:              in.Title,
		Description:        in.Description,
		CuisineType:        in.CuisineType,
		MealType:           in.MealType,
		Ingredients:        in.Ingredients,
		Photos:             dbtypes.StringSlice(in.Photos),
		AllergenInfo:       in.AllergenInfo,
		PortionSize:        in.PortionSize,
		AvailableForSale:   in.AvailableForSale,
		SalePrice:          in.SalePrice,
		AvailableForSwap:   in.AvailableForSwap,
		SwapPreferences:    dbtypes.StringSlice(in.SwapPreferences),
		Status:             models.StatusAvailable,
		SellerLocation:     actor.Location,
		PreparationDate:    in.PreparationDate,
		ExpiresDate:        in.ExpiresDate,
		PickupInstructions: in.PickupInstructions,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if l.PreparationDate.IsZero() {
		l.PreparationDate = now
	}
	if l.ExpiresDate.IsZero() || l.ExpiresDate.Before(l.PreparationDate) {
		return nil, apperr.Invalid("expires_date must be set and not before preparation_date")
	}
	if err := validateOffer(l); err != nil {
		return nil, err
	}

	if err := s.listings.CreateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	logging.Ctx(ctx).Info().Str("listing_id", l.ID).Str("seller_id", actor.ID).Msg("listing created")
	r := owned(l, actor)
	return &r, nil
}

// Get returns a listing with its seller. Every call counts as a view.
func (s *Service) Get(ctx context.Context, id string) (*models.RankedResult, error) {
	l, err := s.listings.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.listings.IncrementViews(ctx, id); err != nil {
		return nil, fmt.Errorf("count view: %w", err)
	}
	l.Views++
	metrics.ListingViews.Inc()

	seller, err := s.users.GetUser(ctx, l.SellerID)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("seller")
	}
	if err != nil {
		return nil, fmt.Errorf("get seller: %w", err)
	}
	return &models.RankedResult{Listing: l, SellerName: seller.FullName, SellerRating: seller.AverageRating}, nil
}

// ownedListing loads id and checks actor owns it.
func (s *Service) ownedListing(ctx context.Context, actor *models.User, id string) (*models.Listing, error) {
	l, err := s.listings.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.SellerID != actor.ID {
		return nil, apperr.New(apperr.CodeForbidden, "you don't have permission to modify this listing")
	}
	return l, nil
}

// Update applies patch to a listing owned by actor.
func (s *Service) Update(ctx context.Context, actor *models.User, id string, patch ListingPatch) (*models.RankedResult, error) {
	l, err := s.ownedListing(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&l.Title, patch.Title)
	setString(&l.Description, patch.Description)
	setString(&l.CuisineType, patch.CuisineType)
	setString(&l.MealType, patch.MealType)
	setString(&l.Ingredients, patch.Ingredients)
	setString(&l.PortionSize, patch.PortionSize)
	setString(&l.PickupInstructions, patch.PickupInstructions)
	if patch.Photos != nil {
		l.Photos = dbtypes.StringSlice(patch.Photos)
	}
	if patch.SwapPreferences != nil {
		l.SwapPreferences = dbtypes.StringSlice(patch.SwapPreferences)
	}
	if patch.AllergenInfo != nil {
		l.AllergenInfo = *patch.AllergenInfo
	}
	if patch.AvailableForSale != nil {
		l.AvailableForSale = *patch.AvailableForSale
	}
	if patch.SalePrice != nil {
		l.SalePrice = patch.SalePrice
	}
	if patch.AvailableForSwap != nil {
		l.AvailableForSwap = *patch.AvailableForSwap
	}
	if patch.Status != nil {
		if !validStatus(*patch.Status) {
			return nil, apperr.Invalid("unknown status %q", *patch.Status)
		}
		l.Status = *patch.Status
	}
	if err := validateOffer(l); err != nil {
		return nil, err
	}
	l.UpdatedAt = s.now()

	if err := s.listings.UpdateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	r := owned(l, actor)
	return &r, nil
}

// Delete retires a listing owned by actor. Listings are never removed from
// storage because transactions and reviews keep referencing them.
func (s *Service) Delete(ctx context.Context, actor *models.User, id string) error {
	l, err := s.ownedListing(ctx, actor, id)
	if err != nil {
		return err
	}
	l.Status = models.StatusRemoved
	l.UpdatedAt = s.now()
	if err := s.listings.UpdateListing(ctx, l); err != nil {
		return fmt.Errorf("retire listing: %w", err)
	}
	logging.Ctx(ctx).Info().Str("listing_id", id).Msg("listing removed")
	return nil
}

// Mine returns actor's own listings in any status, newest first.
func (s *Service) Mine(ctx context.Context, actor *models.User) ([]models.RankedResult, error) {
	ls, err := s.listings.FindListings(ctx, models.ListingFilter{SellerID: actor.ID, Sort: models.SortCreatedDesc}, 0, myListingsCap)
	if err != nil {
		return nil, fmt.Errorf("my listings: %w", err)
	}
	out := make([]models.RankedResult, 0, len(ls))
	for _, l := range ls {
		out = append(out, owned(l, actor))
	}
	return out, nil
}

func (s *Service) Discover(ctx context.Context, q discovery.MatchQuery) ([]models.RankedResult, error) {
	return s.engine.Discover(ctx, q)
}

func (s *Service) Recommend(ctx context.Context, requester *models.User, q discovery.MatchQuery) ([]models.RankedResult, error) {
	return s.engine.Recommend(ctx, requester, q)
}

// User resolves an authenticated user id to its stored profile.
func (s *Service) User(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUser(ctx, id)
}

// UpdatePreferences replaces actor's dietary profile. Restriction names are
// normalised and must be ones the rule table knows.
func (s *Service) UpdatePreferences(ctx context.Context, actor *models.User, p models.DietaryProfile) (*models.User, error) {
	restrictions := make(dbtypes.StringSlice, 0, len(p.DietaryRestrictions))
	for _, r := range p.DietaryRestrictions {
		r = strings.ToLower(strings.TrimSpace(r))
		if !dietary.IsKnown(r) {
			return nil, apperr.Invalid("unknown dietary restriction %q", r)
		}
		restrictions = append(restrictions, r)
	}
	p.DietaryRestrictions = restrictions

	u := *actor
	u.DietaryPreferences = p
	if err := s.users.SaveUser(ctx, &u); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	logging.Ctx(ctx).Info().Str("user_id", u.ID).Msg("dietary preferences updated")
	return &u, nil
}
