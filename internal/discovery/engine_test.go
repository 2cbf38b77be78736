package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitesh/meal_service/internal/apperr"
	dbtypes "github.com/nitesh/meal_service/internal/db"
	"github.com/nitesh/meal_service/pkg/models"
)

// fakeListings returns its candidates in order, honouring skip and limit but
// ignoring the filter, which it records for assertions.
type fakeListings struct {
	candidates []*models.Listing
	err        error

	gotFilter models.ListingFilter
	gotSkip   int
	gotLimit  int
}

func (f *fakeListings) FindListings(_ context.Context, filter models.ListingFilter, skip, limit int) ([]*models.Listing, error) {
	f.gotFilter, f.gotSkip, f.gotLimit = filter, skip, limit
	if f.err != nil {
		return nil, f.err
	}
	out := f.candidates
	if skip < len(out) {
		out = out[skip:]
	} else {
		out = nil
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeSellers struct {
	mu      sync.Mutex
	users   map[string]*models.User
	errFor  map[string]error
	delayed bool
	calls   int
}

func (f *fakeSellers) GetUser(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	f.calls++
	u, ok := f.users[id]
	err := f.errFor[id]
	f.mu.Unlock()

	if f.delayed {
		// later ids answer first to shake out ordering bugs
		time.Sleep(time.Duration(len(id)%5) * time.Millisecond)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func sellersFor(ids ...string) *fakeSellers {
	s := &fakeSellers{users: map[string]*models.User{}, errFor: map[string]error{}}
	for _, id := range ids {
		s.users[id] = &models.User{ID: id, FullName: "Seller " + id, AverageRating: 4.2}
	}
	return s
}

type mealOpt func(*models.Listing)

func withIngredients(s string) mealOpt { return func(l *models.Listing) { l.Ingredients = s } }
func withAllergens(a ...string) mealOpt {
	return func(l *models.Listing) { l.AllergenInfo.Contains = dbtypes.StringSlice(a) }
}
func withCuisine(c string) mealOpt { return func(l *models.Listing) { l.CuisineType = c } }
func withSeller(id string) mealOpt { return func(l *models.Listing) { l.SellerID = id } }
func at(lat, lon float64) mealOpt {
	return func(l *models.Listing) { l.SellerLocation.GeoPoint = models.Point(lat, lon) }
}
func withoutLocation() mealOpt { return func(l *models.Listing) { l.SellerLocation = models.Location{} } }
func ptr[T any](v T) *T { return &v }

func ids(rs []models.RankedResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func meal(id string, opts ...mealOpt) *models.Listing {
	l := &models.Listing{
		ID:          id,
		SellerID:    "s1",
		Title:       id,
		CuisineType: "American",
		Status:      models.StatusAvailable,
	}
	// Raleigh by default
	l.SellerLocation.GeoPoint = models.Point(35.7796, -78.6382)
	for _, o := range opts {
		o(l)
	}
	return l
}

var raleigh = models.Point(35.7796, -78.6382)

func newEngine(listings ListingFinder, sellers SellerFinder) *Engine {
	return NewEngine(listings, sellers, Options{SellerWorkers: 4})
}

func TestDiscoverBuildsStructuralFilterAndOverfetches(t *testing.T) {
	listings := &fakeListings{}
	e := newEngine(listings, sellersFor("s1"))

	q := MatchQuery{
		CuisineType:        "Thai",
		MealType:           "lunch",
		MaxPrice:           ptr(15.0),
		AvailableForSale:   ptr(true),
		MinRating:          ptr(3.5),
		ExcludeAllergens:   []string{"milk"},
		ExcludeIngredients: []string{"cilantro"},
		Skip:               10,
		Limit:              5,
	}
	_, err := e.Discover(context.Background(), q)
	require.NoError(t, err)

	want := models.ListingFilter{
		Status:             models.StatusAvailable,
		CuisineType:        "Thai",
		MealType:           "lunch",
		MaxPrice:           ptr(15.0),
		AvailableForSale:   ptr(true),
		MinRating:          ptr(3.5),
		ExcludeAllergens:   []string{"milk"},
		ExcludeIngredients: []string{"cilantro"},
		Sort:               models.SortCreatedDesc,
	}
	if diff := cmp.Diff(want, listings.gotFilter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 10, listings.gotSkip)
	assert.Equal(t, 10, listings.gotLimit)
}

func TestDiscoverLimitDefaultsAndClamp(t *testing.T) {
	listings := &fakeListings{}
	e := NewEngine(listings, sellersFor(), Options{DefaultLimit: 20, MaxLimit: 50})

	_, err := e.Discover(context.Background(), MatchQuery{Skip: -3})
	require.NoError(t, err)
	assert.Equal(t, 0, listings.gotSkip)
	assert.Equal(t, 40, listings.gotLimit)

	_, err = e.Discover(context.Background(), MatchQuery{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, listings.gotLimit)
}

func TestDiscoverVegetarianScenario(t *testing.T) {
	listings := &fakeListings{candidates: []*models.Listing{
		meal("beef-tacos", withIngredients("Ground BEEF, tortillas, salsa")),
		meal("veggie-bowl", withIngredients("rice, black beans, corn")),
	}}
	e := newEngine(listings, sellersFor("s1"))

	got, err := e.Discover(context.Background(), MatchQuery{DietaryRestrictions: []string{"vegetarian"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"veggie-bowl"}, ids(got))
}

func TestDiscoverRestrictionsIntersect(t *testing.T) {
	candidates := []*models.Listing{
		meal("a", withIngredients("chicken, rice")),
		meal("b", withIngredients("tofu, rice")),
		meal("c", withIngredients("salmon, bread")),
		meal("d", withIngredients("lentils"), withAllergens("wheat")),
		meal("e", withIngredients("veggie pasta")),
		meal("f", withIngredients("shrimp, noodles")),
	}
	run := func(rs ...string) map[string]bool {
		e := newEngine(&fakeListings{candidates: candidates}, sellersFor("s1"))
		got, err := e.Discover(context.Background(), MatchQuery{DietaryRestrictions: rs, Limit: 10})
		require.NoError(t, err)
		set := map[string]bool{}
		for _, id := range ids(got) {
			set[id] = true
		}
		return set
	}

	r1, r2, both := run("vegetarian"), run("gluten-free"), run("vegetarian", "gluten-free")
	want := map[string]bool{}
	for id := range r1 {
		if r2[id] {
			want[id] = true
		}
	}
	assert.Equal(t, want, both)
	assert.Equal(t, map[string]bool{"b": true}, both)
}

func TestDiscoverUnknownRestrictionExcludesNothing(t *testing.T) {
	listings := &fakeListings{candidates: []*models.Listing{meal("a", withIngredients("beef")), meal("b")}}
	e := newEngine(listings, sellersFor("s1"))

	got, err := e.Discover(context.Background(), MatchQuery{DietaryRestrictions: []string{"fruitarian"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestDiscoverDropsListingsWithUnknownSeller(t *testing.T) {
	listings := &fakeListings{candidates: []*models.Listing{
		meal("a", withSeller("s1")),
		meal("orphan", withSeller("gone")),
		meal("b", withSeller("s2")),
	}}
	e := newEngine(listings, sellersFor("s1", "s2"))

	got, err := e.Discover(context.Background(), MatchQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.Equal(t, "Seller s2", got[1].SellerName)
	assert.Equal(t, 4.2, got[1].SellerRating)
}

func TestDiscoverSellerLookupFailureFailsRequest(t *testing.T) {
	sellers := sellersFor("s1")
	sellers.errFor["s1"] = errors.New("connection reset")
	e := newEngine(&fakeListings{candidates: []*models.Listing{meal("a")}}, sellers)

	_, err := e.Discover(context.Background(), MatchQuery{})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))
}

func TestDiscoverStorageFailure(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := newEngine(&fakeListings{err: cause}, sellersFor())

	_, err := e.Discover(context.Background(), MatchQuery{})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))
	assert.ErrorIs(t, err, cause)
}

func TestDiscoverDistanceFilter(t *testing.T) {
	listings := &fakeListings{candidates: []*models.Listing{
		meal("durham", at(35.9940, -78.8986)),
		meal("la", at(34.0522, -118.2437)),
		meal("nowhere", withoutLocation()),
		meal("here"),
	}}
	e := newEngine(listings, sellersFor("s1"))

	got, err := e.Discover(context.Background(), MatchQuery{Location: raleigh, MaxDistanceMiles: ptr(25.0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"here", "durham"}, ids(got))
	for _, r := range got {
		require.NotNil(t, r.Distance)
		assert.LessOrEqual(t, *r.Distance, 25.0)
	}
}

func TestDiscoverRadiusIgnoredWithoutLocation(t *testing.T) {
	listings := &fakeListings{candidates: []*models.Listing{meal("la", at(34.0522, -118.2437)), meal("b", withoutLocation())}}
	e := newEngine(listings, sellersFor("s1"))

	got, err := e.Discover(context.Background(), MatchQuery{MaxDistanceMiles: ptr(1.0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"la", "b"}, ids(got))
	assert.Nil(t, got[0].Distance)
}

func TestDiscoverSortsByDistanceNilLast(t *testing.T) {
	listings := &fakeListings{candidates: []*models.Listing{
		meal("unknown-1", withoutLocation()),
		meal("la", at(34.0522, -118.2437)),
		meal("here-1"),
		meal("durham", at(35.9940, -78.8986)),
		meal("unknown-2", withoutLocation()),
		meal("here-2"),
	}}
	e := newEngine(listings, sellersFor("s1"))

	got, err := e.Discover(context.Background(), MatchQuery{Location: raleigh})
	require.NoError(t, err)
	assert.Equal(t, []string{"here-1", "here-2", "durham", "la", "unknown-1", "unknown-2"}, ids(got))
	assert.Equal(t, 0.0, *got[0].Distance)
}

func TestDiscoverWithoutLocationKeepsStoreOrder(t *testing.T) {
	listings := &fakeListings{candidates: []*models.Listing{
		meal("newest", at(34.0522, -118.2437)),
		meal("middle"),
		meal("oldest", at(35.9940, -78.8986)),
	}}
	e := newEngine(listings, sellersFor("s1"))

	got, err := e.Discover(context.Background(), MatchQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"newest", "middle", "oldest"}, ids(got))
	for _, r := range got {
		assert.Nil(t, r.Distance)
	}
}

func TestDiscoverTruncatesToLimitAndMayUnderfill(t *testing.T) {
	var candidates []*models.Listing
	for i := 0; i < 10; i++ {
		ing := "rice"
		if i%2 == 0 {
			ing = "pork belly"
		}
		candidates = append(candidates, meal(fmt.Sprintf("m%d", i), withIngredients(ing)))
	}

	e := newEngine(&fakeListings{candidates: candidates}, sellersFor("s1"))
	got, err := e.Discover(context.Background(), MatchQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m0", "m1"}, ids(got))

	// 2*limit candidates fetched, half filtered out, no second query
	listings := &fakeListings{candidates: candidates}
	e = newEngine(listings, sellersFor("s1"))
	got, err = e.Discover(context.Background(), MatchQuery{Limit: 4, DietaryRestrictions: []string{"vegetarian"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3", "m5", "m7"}, ids(got))

	got, err = e.Discover(context.Background(), MatchQuery{Limit: 3, DietaryRestrictions: []string{"vegetarian"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3", "m5"}, ids(got))

	got, err = e.Discover(context.Background(), MatchQuery{Skip: 6, Limit: 3, DietaryRestrictions: []string{"vegetarian"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m7", "m9"}, ids(got))
}

func TestDiscoverConcurrentSellerResolutionKeepsOrder(t *testing.T) {
	var candidates []*models.Listing
	sellers := sellersFor()
	sellers.delayed = true
	want := []string{}
	for i := 0; i < 40; i++ {
		sid := fmt.Sprintf("seller-%d", i)
		if i%7 != 3 {
			sellers.users[sid] = &models.User{ID: sid, FullName: sid}
			want = append(want, fmt.Sprintf("m%02d", i))
		}
		candidates = append(candidates, meal(fmt.Sprintf("m%02d", i), withSeller(sid)))
	}
	e := NewEngine(&fakeListings{candidates: candidates}, sellers, Options{SellerWorkers: 6, MaxLimit: 100})

	got, err := e.Discover(context.Background(), MatchQuery{Limit: 40})
	require.NoError(t, err)
	assert.Equal(t, want, ids(got))
	assert.Equal(t, 40, sellers.calls)
}

func TestRecommend(t *testing.T) {
	requester := &models.User{
		ID: "me",
		DietaryPreferences: models.DietaryProfile{
			DietaryRestrictions: dbtypes.StringSlice{"vegetarian"},
			Allergens:           dbtypes.StringSlice{"peanuts"},
			AvoidIngredients:    dbtypes.StringSlice{"Cilantro"},
			CuisinePreferences:  dbtypes.StringSlice{"Thai", "Indian"},
		},
	}
	listings := &fakeListings{candidates: []*models.Listing{
		meal("burger", withIngredients("beef patty"), withCuisine("American")),
		meal("pad-thai", withIngredients("rice noodles, tofu"), withCuisine("Thai")),
		meal("tacos", withIngredients("beans, cilantro"), withCuisine("Mexican")),
		meal("salad", withIngredients("greens"), withCuisine("American")),
		meal("dal", withIngredients("lentils"), withCuisine("Indian")),
		meal("pizza", withIngredients("tomato, basil"), withCuisine("Italian")),
	}}
	e := newEngine(listings, sellersFor("s1"))

	got, err := e.Recommend(context.Background(), requester, MatchQuery{Limit: 10, DietaryRestrictions: []string{"vegan"}, CuisineType: "Mexican"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pad-thai", "dal", "salad", "pizza"}, ids(got))
	assert.Equal(t, "me", listings.gotFilter.ExcludeSellerID)
	assert.Equal(t, []string{"peanuts"}, listings.gotFilter.ExcludeAllergens)
	assert.Empty(t, listings.gotFilter.ExcludeIngredients)
	assert.Empty(t, listings.gotFilter.CuisineType)
	assert.Equal(t, models.StatusAvailable, listings.gotFilter.Status)
	assert.Equal(t, 20, listings.gotLimit)
}

func TestRecommendPreferredFirstThenDistance(t *testing.T) {
	requester := &models.User{ID: "me", DietaryPreferences: models.DietaryProfile{CuisinePreferences: dbtypes.StringSlice{"thai"}}}
	listings := &fakeListings{candidates: []*models.Listing{
		meal("thai-far", withCuisine("Thai"), at(35.9940, -78.8986)),
		meal("other-near", withCuisine("American")),
		meal("thai-near", withCuisine("Thai")),
	}}
	e := newEngine(listings, sellersFor("s1"))

	got, err := e.Recommend(context.Background(), requester, MatchQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"thai-far", "thai-near", "other-near"}, ids(got))

	// with a location the distance sort runs last and is stable
	got, err = e.Recommend(context.Background(), requester, MatchQuery{Location: raleigh})
	require.NoError(t, err)
	assert.Equal(t, []string{"thai-near", "other-near", "thai-far"}, ids(got))
}

func TestRecommendRequiresIdentity(t *testing.T) {
	e := newEngine(&fakeListings{}, sellersFor())
	_, err := e.Recommend(context.Background(), nil, MatchQuery{})
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
}

func TestPreferredFirstIsStablePartition(t *testing.T) {
	in := []models.RankedResult{
		{Listing: meal("1", withCuisine("Thai"))},
		{Listing: meal("2", withCuisine("French"))},
		{Listing: meal("3", withCuisine("Indian"))},
		{Listing: meal("4", withCuisine("thai"))},
		{Listing: meal("5", withCuisine("Greek"))},
	}
	got := preferredFirst(in, []string{"Thai", "Indian"})
	assert.Equal(t, []string{"1", "3", "4", "2", "5"}, ids(got))
}
