package places

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// overpassFilter is one OSM tag=value pair an Overpass-style query filters
// on for a given category.
type overpassFilter struct {
	Key, Value string
}

// categoryFilters maps each PlaceCategory onto the OSM tags that identify
// it, used to build the external query's filter expression.
var categoryFilters = map[domain.PlaceCategory][]overpassFilter{
	domain.CategoryFuel:          {{"amenity", "fuel"}},
	domain.CategoryEVCharging:    {{"amenity", "charging_station"}},
	domain.CategoryRestArea:      {{"highway", "rest_area"}, {"amenity", "rest_area"}},
	domain.CategoryToilets:       {{"amenity", "toilets"}},
	domain.CategoryHospital:      {{"amenity", "hospital"}},
	domain.CategoryPharmacy:      {{"amenity", "pharmacy"}},
	domain.CategoryPolice:        {{"amenity", "police"}},
	domain.CategoryMechanic:      {{"shop", "car_repair"}},
	domain.CategoryATM:           {{"amenity", "atm"}},
	domain.CategoryWater:         {{"amenity", "drinking_water"}},
	domain.CategorySupermarket:   {{"shop", "supermarket"}},
	domain.CategoryConvenience:   {{"shop", "convenience"}},
	domain.CategoryLiquor:        {{"shop", "alcohol"}},
	domain.CategoryHardware:      {{"shop", "hardware"}},
	domain.CategoryPostOffice:    {{"amenity", "post_office"}},
	domain.CategoryCafe:          {{"amenity", "cafe"}},
	domain.CategoryRestaurant:    {{"amenity", "restaurant"}},
	domain.CategoryFastFood:      {{"amenity", "fast_food"}},
	domain.CategoryBakery:        {{"shop", "bakery"}},
	domain.CategoryPub:           {{"amenity", "pub"}, {"amenity", "bar"}},
	domain.CategoryBBQ:           {{"amenity", "bbq"}},
	domain.CategoryPicnic:        {{"tourism", "picnic_site"}},
	domain.CategoryHotel:         {{"tourism", "hotel"}},
	domain.CategoryMotel:         {{"tourism", "motel"}},
	domain.CategoryCaravanPark:   {{"tourism", "caravan_site"}},
	domain.CategoryCampsite:      {{"tourism", "camp_site"}},
	domain.CategoryHostel:        {{"tourism", "hostel"}},
	domain.CategoryLookout:       {{"tourism", "viewpoint"}},
	domain.CategoryWaterfall:     {{"waterway", "waterfall"}},
	domain.CategoryBeach:         {{"natural", "beach"}},
	domain.CategoryNationalPark:  {{"leisure", "nature_reserve"}, {"boundary", "national_park"}},
	domain.CategoryWalkingTrail:  {{"highway", "path"}, {"route", "hiking"}},
	domain.CategorySwimming:      {{"leisure", "swimming_area"}},
	domain.CategoryPlayground:    {{"leisure", "playground"}},
	domain.CategoryZoo:           {{"tourism", "zoo"}},
	domain.CategoryWaterPark:     {{"leisure", "water_park"}},
	domain.CategoryThemePark:     {{"tourism", "theme_park"}},
	domain.CategoryMuseum:        {{"tourism", "museum"}},
	domain.CategoryGallery:       {{"tourism", "gallery"}},
	domain.CategoryMonument:      {{"historic", "monument"}},
	domain.CategoryHeritage:      {{"historic", "heritage"}},
	domain.CategoryVisitorCentre: {{"tourism", "information"}, {"information", "visitor_centre"}},
	domain.CategoryWinery:        {{"craft", "winery"}},
	domain.CategoryTown:          {{"place", "town"}},
	domain.CategorySuburb:        {{"place", "suburb"}},
	domain.CategoryLocality:      {{"place", "locality"}},
}

// safetyPriority lists categories checked first during tag-based
// classification, ahead of generic attractions.
var safetyPriority = []domain.PlaceCategory{
	domain.CategoryHospital,
	domain.CategoryPolice,
	domain.CategoryFuel,
	domain.CategoryEVCharging,
	domain.CategoryPharmacy,
	domain.CategoryMechanic,
	domain.CategoryRestArea,
	domain.CategoryToilets,
	domain.CategoryWater,
	domain.CategoryATM,
}

// classificationOrder is safetyPriority followed by every remaining
// category in name order, so the whole vocabulary is covered and the
// match order is the same on every run.
var classificationOrder = buildClassificationOrder()

func buildClassificationOrder() []domain.PlaceCategory {
	seen := make(map[domain.PlaceCategory]bool, len(categoryFilters))
	order := append([]domain.PlaceCategory(nil), safetyPriority...)
	for _, c := range order {
		seen[c] = true
	}
	var rest []domain.PlaceCategory
	for c := range categoryFilters {
		if !seen[c] {
			rest = append(rest, c)
			seen[c] = true
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(order, rest...)
}

// FiltersForCategories expands a request's category set into the OSM tag
// filters used to build the external query.
func FiltersForCategories(categories []string) []overpassFilter {
	var out []overpassFilter
	for _, c := range categories {
		out = append(out, categoryFilters[domain.PlaceCategory(c)]...)
	}
	return out
}

// ClassifyTags infers a single PlaceCategory from a feature's raw OSM tags
// via a priority-ordered match. Unmatched tags classify as
// unknown.
func ClassifyTags(tags map[string]string) domain.PlaceCategory {
	for _, cat := range classificationOrder {
		for _, f := range categoryFilters[cat] {
			if tags[f.Key] == f.Value {
				return cat
			}
		}
	}
	return domain.CategoryUnknown
}

// categoryLabelOverrides gives a few categories a display label other than
// the mechanical title-case of their tag (acronyms read oddly otherwise).
var categoryLabelOverrides = map[domain.PlaceCategory]string{
	domain.CategoryBBQ:        "BBQ",
	domain.CategoryATM:        "ATM",
	domain.CategoryEVCharging: "EV Charging",
}

// SyntheticName builds a display name for a feature lacking name/brand/
// operator tags, e.g. "BBQ — Goondiwindi".
func SyntheticName(category domain.PlaceCategory, locality string) string {
	label, ok := categoryLabelOverrides[category]
	if !ok {
		label = titleCase(strings.ReplaceAll(string(category), "_", " "))
	}
	if locality == "" {
		return label
	}
	return fmt.Sprintf("%s — %s", label, locality)
}

func titleCase(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// HasIdentifyingTag reports whether a feature's tags carry a name, brand,
// or operator value, the trigger for synthetic-name generation.
func HasIdentifyingTag(tags map[string]string) bool {
	for _, k := range []string{"name", "brand", "operator"} {
		if v, ok := tags[k]; ok && strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
