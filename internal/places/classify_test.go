package places

import (
	"testing"

	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

func TestClassifyTags_SafetyPrecedesGeneric(t *testing.T) {
	// A feature tagged as both a fuel stop and (implausibly) a picnic site
	// should classify by the safety-priority category.
	tags := map[string]string{"amenity": "fuel", "tourism": "picnic_site"}
	if got := ClassifyTags(tags); got != domain.CategoryFuel {
		t.Fatalf("got %q, want fuel", got)
	}
}

func TestClassifyTags_Unmatched(t *testing.T) {
	tags := map[string]string{"building": "yes"}
	if got := ClassifyTags(tags); got != domain.CategoryUnknown {
		t.Fatalf("got %q, want unknown", got)
	}
}

func TestFiltersForCategories_ExpandsKnownOnly(t *testing.T) {
	filters := FiltersForCategories([]string{"fuel", "not_a_real_category"})
	if len(filters) != 1 || filters[0].Key != "amenity" || filters[0].Value != "fuel" {
		t.Fatalf("got %+v", filters)
	}
}

func TestSyntheticName_Format(t *testing.T) {
	name := SyntheticName(domain.CategoryBBQ, "Goondiwindi")
	if name != "BBQ — Goondiwindi" {
		t.Fatalf("got %q", name)
	}
}

func TestHasIdentifyingTag(t *testing.T) {
	if !HasIdentifyingTag(map[string]string{"name": "Shell Goondiwindi"}) {
		t.Fatalf("expected name tag to count as identifying")
	}
	if HasIdentifyingTag(map[string]string{"amenity": "fuel"}) {
		t.Fatalf("expected amenity-only tags to not count as identifying")
	}
}
