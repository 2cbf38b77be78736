package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nitesh/meal_service/internal/apperr"
	dbtypes "github.com/nitesh/meal_service/internal/db"
	"github.com/nitesh/meal_service/pkg/models"
)

type PgStore struct {
	db *sqlx.DB
}

func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{db: sqlx.NewDb(db, "postgres")}
}

func RunMigrations(db *sql.DB) error {
	initSQL := `
CREATE TABLE IF NOT EXISTS users(
  id UUID PRIMARY KEY,
  email TEXT NOT NULL DEFAULT '',
  full_name TEXT NOT NULL DEFAULT '',
  latitude DOUBLE PRECISION,
  longitude DOUBLE PRECISION,
  city TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
  dietary_restrictions JSONB NOT NULL DEFAULT '[]',
  allergens JSONB NOT NULL DEFAULT '[]',
  avoid_ingredients JSONB NOT NULL DEFAULT '[]',
  cuisine_preferences JSONB NOT NULL DEFAULT '[]',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- no foreign key on seller_id: discovery drops listings whose seller row is gone
CREATE TABLE IF NOT EXISTS listings(
  id UUID PRIMARY KEY,
  seller_id UUID NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  cuisine_type TEXT NOT NULL DEFAULT '',
  meal_type TEXT NOT NULL DEFAULT '',
  ingredients TEXT NOT NULL DEFAULT '',
  photos JSONB NOT NULL DEFAULT '[]',
  allergens_contains JSONB NOT NULL DEFAULT '[]',
  allergens_may_contain JSONB NOT NULL DEFAULT '[]',
  portion_size TEXT NOT NULL DEFAULT '',
  available_for_sale BOOLEAN NOT NULL DEFAULT false,
  sale_price DOUBLE PRECISION,
  available_for_swap BOOLEAN NOT NULL DEFAULT false,
  swap_preferences JSONB NOT NULL DEFAULT '[]',
  status TEXT NOT NULL DEFAULT 'available',
  seller_latitude DOUBLE PRECISION,
  seller_longitude DOUBLE PRECISION,
  seller_city TEXT NOT NULL DEFAULT '',
  seller_state TEXT NOT NULL DEFAULT '',
  preparation_date TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_date TIMESTAMPTZ NOT NULL DEFAULT now(),
  pickup_instructions TEXT NOT NULL DEFAULT '',
  average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_reviews INTEGER NOT NULL DEFAULT 0,
  views INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_status_created ON listings(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);
CREATE INDEX IF NOT EXISTS idx_listings_cuisine ON listings(cuisine_type);
-- GIN index for the ?| allergen exclusion
CREATE INDEX IF NOT EXISTS idx_listings_allergens ON listings USING GIN (allergens_contains);
`
	_, err := db.Exec(initSQL)
	return err
}

type listingRow struct {
	ID                  string              `db:"id"`
	SellerID            string              `db:"seller_id"`
	Title               string              `db:"title"`
	Description         string              `db:"description"`
	CuisineType         string              `db:"cuisine_type"`
	MealType            string              `db:"meal_type"`
	Ingredients         string              `db:"ingredients"`
	Photos              dbtypes.StringSlice `db:"photos"`
	AllergensContains   dbtypes.StringSlice `db:"allergens_contains"`
	AllergensMayContain dbtypes.StringSlice `db:"allergens_may_contain"`
	PortionSize         string              `db:"portion_size"`
	AvailableForSale    bool                `db:"available_for_sale"`
	SalePrice           *float64            `db:"sale_price"`
	AvailableForSwap    bool                `db:"available_for_swap"`
	SwapPreferences     dbtypes.StringSlice `db:"swap_preferences"`
	Status              string              `db:"status"`
	SellerLatitude      *float64            `db:"seller_latitude"`
	SellerLongitude     *float64            `db:"seller_longitude"`
	SellerCity          string              `db:"seller_city"`
	SellerState         string              `db:"seller_state"`
	PreparationDate     time.Time           `db:"preparation_date"`
	ExpiresDate         time.Time           `db:"expires_date"`
	PickupInstructions  string              `db:"pickup_instructions"`
	AverageRating       float64             `db:"average_rating"`
	TotalReviews        int                 `db:"total_reviews"`
	Views               int                 `db:"views"`
	CreatedAt           time.Time           `db:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at"`
}

func (r *listingRow) toModel() *models.Listing {
	return &models.Listing{
		ID:          r.ID,
		SellerID:    r.SellerID,
		Title:       r.Title,
		Description: r.Description,
		CuisineType: r.CuisineType,
		MealType:    r.MealType,
		Ingredients: r.Ingredients,
		Photos:      r.Photos,
		AllergenInfo: models.AllergenInfo{
			Contains:   r.AllergensContains,
			MayContain: r.AllergensMayContain,
		},
		PortionSize:      r.PortionSize,
		AvailableForSale: r.AvailableForSale,
		SalePrice:        r.SalePrice,
		AvailableForSwap: r.AvailableForSwap,
		SwapPreferences:  r.SwapPreferences,
		Status:           r.Status,
		SellerLocation: models.Location{
			GeoPoint: models.GeoPoint{Latitude: r.SellerLatitude, Longitude: r.SellerLongitude},
			City:     r.SellerCity,
			State:    r.SellerState,
		},
		PreparationDate:    r.PreparationDate,
		ExpiresDate:        r.ExpiresDate,
		PickupInstructions: r.PickupInstructions,
		AverageRating:      r.AverageRating,
		TotalReviews:       r.TotalReviews,
		Views:              r.Views,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type userRow struct {
	ID                  string              `db:"id"`
	Email               string              `db:"email"`
	FullName            string              `db:"full_name"`
	Latitude            *float64            `db:"latitude"`
	Longitude           *float64            `db:"longitude"`
	City                string              `db:"city"`
	State               string              `db:"state"`
	AverageRating       float64             `db:"average_rating"`
	DietaryRestrictions dbtypes.StringSlice `db:"dietary_restrictions"`
	Allergens           dbtypes.StringSlice `db:"allergens"`
	AvoidIngredients    dbtypes.StringSlice `db:"avoid_ingredients"`
	CuisinePreferences  dbtypes.StringSlice `db:"cuisine_preferences"`
	CreatedAt           time.Time           `db:"created_at"`
}

func (r *userRow) toModel() *models.User {
	return &models.User{
		ID:       r.ID,
		Email:    r.Email,
		FullName: r.FullName,
		Location: models.Location{
			GeoPoint: models.GeoPoint{Latitude: r.Latitude, Longitude: r.Longitude},
			City:     r.City,
			State:    r.State,
		},
		AverageRating: r.AverageRating,
		DietaryPreferences: models.DietaryProfile{
			DietaryRestrictions: r.DietaryRestrictions,
			Allergens:           r.Allergens,
			AvoidIngredients:    r.AvoidIngredients,
			CuisinePreferences:  r.CuisinePreferences,
		},
		CreatedAt: r.CreatedAt,
	}
}

func parseID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Invalid("invalid %s id %q", kind, id)
	}
	return nil
}

// FindListings returns listings matching f, newest first.
func (p *PgStore) FindListings(ctx context.Context, f models.ListingFilter, skip, limit int) ([]*models.Listing, error) {
	query, args := buildFindListings(f, skip, limit)
	rows := []listingRow{}
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Unavailable("find listings", err)
	}
	out := make([]*models.Listing, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (p *PgStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	if err := parseID("listing", id); err != nil {
		return nil, err
	}
	var row listingRow
	err := p.db.GetContext(ctx, &row, "SELECT "+listingColumns+"\nFROM listings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("listing")
	}
	if err != nil {
		return nil, apperr.Unavailable("get listing", err)
	}
	return row.toModel(), nil
}

// IncrementViews bumps the view counter in a single statement.
func (p *PgStore) IncrementViews(ctx context.Context, id string) error {
	if err := parseID("listing", id); err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, "UPDATE listings SET views = views + 1 WHERE id = $1", id)
	if err != nil {
		return apperr.Unavailable("increment views", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("listing")
	}
	return nil
}

// CreateListing inserts l, assigning an id when empty.
func (p *PgStore) CreateListing(ctx context.Context, l *models.Listing) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	stmt := `
INSERT INTO listings (` + listingColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9::jsonb,$10::jsonb,$11,$12,$13,$14,$15::jsonb,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
`
	if _, err := p.db.ExecContext(ctx, stmt, listingArgs(l)...); err != nil {
		return apperr.Unavailable(fmt.Sprintf("insert listing id=%s", l.ID), err)
	}
	return nil
}

// UpdateListing overwrites the mutable columns of l. Counters and rating
// fields are owned by other writers and left alone.
func (p *PgStore) UpdateListing(ctx context.Context, l *models.Listing) error {
	if err := parseID("listing", l.ID); err != nil {
		return err
	}
	stmt := `
UPDATE listings SET
 title=$2, description=$3, cuisine_type=$4, meal_type=$5, ingredients=$6, photos=$7::jsonb,
 allergens_contains=$8::jsonb, allergens_may_contain=$9::jsonb, portion_size=$10,
 available_for_sale=$11, sale_price=$12, available_for_swap=$13, swap_preferences=$14::jsonb,
 status=$15, pickup_instructions=$16, updated_at=$17
WHERE id = $1
`
	res, err := p.db.ExecContext(ctx, stmt,
		l.ID, l.Title, l.Description, l.CuisineType, l.MealType, l.Ingredients, l.Photos,
		l.AllergenInfo.Contains, l.AllergenInfo.MayContain, l.PortionSize,
		l.AvailableForSale, l.SalePrice, l.AvailableForSwap, l.SwapPreferences,
		l.Status, l.PickupInstructions, l.UpdatedAt,
	)
	if err != nil {
		return apperr.Unavailable(fmt.Sprintf("update listing id=%s", l.ID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("listing")
	}
	return nil
}

func listingArgs(l *models.Listing) []interface{} {
	loc := l.SellerLocation
	return []interface{}{
		l.ID, l.SellerID, l.Title, l.Description, l.CuisineType, l.MealType, l.Ingredients,
		l.Photos, l.AllergenInfo.Contains, l.AllergenInfo.MayContain, l.PortionSize,
		l.AvailableForSale, l.SalePrice, l.AvailableForSwap, l.SwapPreferences, l.Status,
		loc.Latitude, loc.Longitude, loc.City, loc.State,
		l.PreparationDate, l.ExpiresDate, l.PickupInstructions,
		l.AverageRating, l.TotalReviews, l.Views, l.CreatedAt, l.UpdatedAt,
	}
}

func (p *PgStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := parseID("user", id); err != nil {
		return nil, err
	}
	var row userRow
	err := p.db.GetContext(ctx, &row, "SELECT "+userColumns+"\nFROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, apperr.Unavailable("get user", err)
	}
	return row.toModel(), nil
}

// SaveUser upserts a user profile, including dietary preferences.
func (p *PgStore) SaveUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	prefs := u.DietaryPreferences
	stmt := `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10::jsonb,$11::jsonb,$12::jsonb,$13)
ON CONFLICT (id) DO UPDATE SET
 email=EXCLUDED.email,
 full_name=EXCLUDED.full_name,
 latitude=EXCLUDED.latitude,
 longitude=EXCLUDED.longitude,
 city=EXCLUDED.city,
 state=EXCLUDED.state,
 average_rating=EXCLUDED.average_rating,
 dietary_restrictions=EXCLUDED.dietary_restrictions,
 allergens=EXCLUDED.allergens,
 avoid_ingredients=EXCLUDED.avoid_ingredients,
 cuisine_preferences=EXCLUDED.cuisine_preferences;
`
	_, err := p.db.ExecContext(ctx, stmt,
		u.ID, u.Email, u.FullName, u.Location.Latitude, u.Location.Longitude,
		u.Location.City, u.Location.State, u.AverageRating,
		prefs.DietaryRestrictions, prefs.Allergens, prefs.AvoidIngredients, prefs.CuisinePreferences,
		u.CreatedAt,
	)
	if err != nil {
		return apperr.Unavailable(fmt.Sprintf("save user id=%s", u.ID), err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (p *PgStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
