package store

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/nitesh/meal_service/pkg/models"
)

const listingColumns = `id, seller_id, title, description, cuisine_type, meal_type, ingredients, photos,
allergens_contains, allergens_may_contain, portion_size, available_for_sale, sale_price,
available_for_swap, swap_preferences, status, seller_latitude, seller_longitude, seller_city,
seller_state, preparation_date, expires_date, pickup_instructions, average_rating, total_reviews,
views, created_at, updated_at`

const userColumns = `id, email, full_name, latitude, longitude, city, state, average_rating,
dietary_restrictions, allergens, avoid_ingredients, cuisine_preferences, created_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildFindListings renders f as a parameterised SELECT. Excluded allergens
// are exact element matches against the jsonb array; excluded ingredients are
// case-insensitive substring matches against the free-text column.
func buildFindListings(f models.ListingFilter, skip, limit int) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(format string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.CuisineType != "" {
		add("cuisine_type = $%d", f.CuisineType)
	}
	if f.MealType != "" {
		add("meal_type = $%d", f.MealType)
	}
	if f.MaxPrice != nil {
		add("sale_price <= $%d", *f.MaxPrice)
	}
	if f.AvailableForSale != nil {
		add("available_for_sale = $%d", *f.AvailableForSale)
	}
	if f.AvailableForSwap != nil {
		add("available_for_swap = $%d", *f.AvailableForSwap)
	}
	if f.MinRating != nil {
		add("average_rating >= $%d", *f.MinRating)
	}
	if len(f.ExcludeAllergens) > 0 {
		add("NOT (allergens_contains ?| $%d::text[])", pq.Array(f.ExcludeAllergens))
	}
	for _, ing := range f.ExcludeIngredients {
		if ing = strings.TrimSpace(ing); ing != "" {
			add("ingredients NOT ILIKE $%d", "%"+likeEscaper.Replace(ing)+"%")
		}
	}
	if f.SellerID != "" {
		add("seller_id = $%d", f.SellerID)
	}
	if f.ExcludeSellerID != "" {
		add("seller_id <> $%d", f.ExcludeSellerID)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(listingColumns)
	b.WriteString("\nFROM listings")
	if len(conds) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	// created_at DESC is the only supported order; id breaks ties.
	b.WriteString("\nORDER BY created_at DESC, id")
	args = append(args, skip, limit)
	fmt.Fprintf(&b, "\nOFFSET $%d LIMIT $%d", len(args)-1, len(args))
	return b.String(), args
}
