package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nitesh/meal_service/internal/apperr"
	"github.com/nitesh/meal_service/internal/dietary"
	"github.com/nitesh/meal_service/internal/geo"
	"github.com/nitesh/meal_service/internal/logging"
	"github.com/nitesh/meal_service/internal/metrics"
	"github.com/nitesh/meal_service/pkg/models"
)

const (
	opDiscover  = "discover"
	opRecommend = "recommend"
)

// Options tunes an Engine. Zero values fall back to the defaults below.
type Options struct {
	DefaultLimit    int
	MaxLimit        int
	OverfetchFactor int
	SellerWorkers   int
	Evaluator       dietary.Evaluator
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 20
	}
	if o.MaxLimit < o.DefaultLimit {
		o.MaxLimit = 100
	}
	if o.OverfetchFactor < 1 {
		o.OverfetchFactor = 2
	}
	if o.SellerWorkers < 1 {
		o.SellerWorkers = 8
	}
	if o.Evaluator == nil {
		o.Evaluator = dietary.KeywordEvaluator{}
	}
	return o
}

// Engine runs discover and recommend queries. It holds no per-request state
// and is safe for concurrent use.
type Engine struct {
	listings ListingFinder
	sellers  SellerFinder
	opts     Options
}

func NewEngine(listings ListingFinder, sellers SellerFinder, opts Options) *Engine {
	return &Engine{listings: listings, sellers: sellers, opts: opts.withDefaults()}
}

// plan is what a public operation hands to run.
type plan struct {
	op           string
	filter       models.ListingFilter
	restrictions []string
	// avoid is matched in memory rather than in the store query.
	avoid     []string
	preferred []string
}

// Discover is the public browse: every constraint comes from q.
func (e *Engine) Discover(ctx context.Context, q MatchQuery) ([]models.RankedResult, error) {
	p := plan{
		op: opDiscover,
		filter: models.ListingFilter{
			Status:             models.StatusAvailable,
			CuisineType:        q.CuisineType,
			MealType:           q.MealType,
			MaxPrice:           q.MaxPrice,
			AvailableForSale:   q.AvailableForSale,
			AvailableForSwap:   q.AvailableForSwap,
			MinRating:          q.MinRating,
			ExcludeAllergens:   q.ExcludeAllergens,
			ExcludeIngredients: q.ExcludeIngredients,
			Sort:               models.SortCreatedDesc,
		},
		restrictions: q.DietaryRestrictions,
	}
	return e.run(ctx, p, q)
}

// Recommend builds the filters from the requester's stored dietary profile and
// never returns the requester's own listings. Only the location, distance and
// paging fields of q are used, plus any extra preferred cuisines.
func (e *Engine) Recommend(ctx context.Context, requester *models.User, q MatchQuery) ([]models.RankedResult, error) {
	if requester == nil || requester.ID == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "recommendations require an identity")
	}
	prefs := requester.DietaryPreferences

	p := plan{
		op: opRecommend,
		filter: models.ListingFilter{
			Status:           models.StatusAvailable,
			ExcludeSellerID:  requester.ID,
			ExcludeAllergens: prefs.Allergens,
			Sort:             models.SortCreatedDesc,
		},
		restrictions: prefs.DietaryRestrictions,
		avoid:        prefs.AvoidIngredients,
		preferred:    append(append([]string{}, prefs.CuisinePreferences...), q.PreferredCuisines...),
	}
	return e.run(ctx, p, q)
}

func (e *Engine) page(q MatchQuery) (skip, limit int) {
	skip, limit = q.Skip, q.Limit
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	if limit > e.opts.MaxLimit {
		limit = e.opts.MaxLimit
	}
	return skip, limit
}

func (e *Engine) run(ctx context.Context, p plan, q MatchQuery) ([]models.RankedResult, error) {
	start := time.Now()
	skip, limit := e.page(q)

	candidates, err := e.listings.FindListings(ctx, p.filter, skip, limit*e.opts.OverfetchFactor)
	if err != nil {
		return nil, storageErr(p.op+": find candidates", err)
	}
	fetched := len(candidates)
	defer func() { metrics.ObservePipeline(p.op, start, fetched) }()

	candidates = e.postFilter(p, candidates)

	results, err := e.annotate(ctx, p.op, candidates, q.Location)
	if err != nil {
		return nil, err
	}

	if q.MaxDistanceMiles != nil && q.Location.Valid() {
		results = withinRadius(p.op, results, *q.MaxDistanceMiles)
	}
	if len(p.preferred) > 0 {
		results = preferredFirst(results, p.preferred)
	}
	if q.Location.Valid() {
		sortByDistance(results)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	logging.Ctx(ctx).Debug().
		Str("op", p.op).
		Int("fetched", fetched).
		Int("returned", len(results)).
		Dur("took", time.Since(start)).
		Msg("discovery pipeline")
	return results, nil
}

// postFilter applies the rules the store query cannot express.
func (e *Engine) postFilter(p plan, in []*models.Listing) []*models.Listing {
	out := make([]*models.Listing, 0, len(in))
	var dietDrops, ingredientDrops int
	for _, l := range in {
		if !dietary.MatchesAll(e.opts.Evaluator, l, p.restrictions) {
			dietDrops++
			continue
		}
		if len(p.avoid) > 0 && !e.opts.Evaluator.ExcludesIngredients(l, p.avoid) {
			ingredientDrops++
			continue
		}
		out = append(out, l)
	}
	metrics.Dropped(p.op, metrics.DropDietary, dietDrops)
	metrics.Dropped(p.op, metrics.DropIngredient, ingredientDrops)
	return out
}

// annotate resolves sellers with a bounded worker pool and computes distances.
// Candidates whose seller is missing are dropped; output keeps input order.
func (e *Engine) annotate(ctx context.Context, op string, listings []*models.Listing, from models.GeoPoint) ([]models.RankedResult, error) {
	slots := make([]*models.RankedResult, len(listings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.SellerWorkers)
	for i, l := range listings {
		i, l := i, l
		g.Go(func() error {
			seller, err := e.sellers.GetUser(gctx, l.SellerID)
			if apperr.IsNotFound(err) || (err == nil && seller == nil) {
				logging.Ctx(ctx).Warn().
					Str("listing_id", l.ID).
					Str("seller_id", l.SellerID).
					Msg("dropping listing with unknown seller")
				return nil
			}
			if err != nil {
				return storageErr("resolve seller "+l.SellerID, err)
			}
			slots[i] = &models.RankedResult{
				Listing:      l,
				Distance:     geo.Distance(from, l.SellerLocation.GeoPoint),
				SellerName:   seller.FullName,
				SellerRating: seller.AverageRating,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]models.RankedResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	metrics.Dropped(op, metrics.DropSeller, len(listings)-len(out))
	return out, nil
}

// withinRadius keeps results with a known distance no greater than maxMiles.
func withinRadius(op string, in []models.RankedResult, maxMiles float64) []models.RankedResult {
	out := in[:0]
	for _, r := range in {
		if r.Distance != nil && *r.Distance <= maxMiles {
			out = append(out, r)
		}
	}
	metrics.Dropped(op, metrics.DropDistance, len(in)-len(out))
	return out
}

// preferredFirst moves listings whose cuisine is preferred to the front,
// keeping relative order inside both groups.
func preferredFirst(in []models.RankedResult, cuisines []string) []models.RankedResult {
	preferred := make([]models.RankedResult, 0, len(in))
	var other []models.RankedResult
	for _, r := range in {
		if containsFold(cuisines, r.CuisineType) {
			preferred = append(preferred, r)
		} else {
			other = append(other, r)
		}
	}
	return append(preferred, other...)
}

// sortByDistance orders by ascending distance with unknown distances last.
// The sort is stable so ties keep the pipeline's prior order.
func sortByDistance(rs []models.RankedResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].Distance, rs[j].Distance
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// storageErr classifies a collaborator failure. Errors that already carry a
// code keep it; anything else is reported as the store being unavailable.
func storageErr(op string, err error) error {
	if apperr.CodeOf(err) != apperr.CodeInternal {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperr.Unavailable(op, err)
}
