package matcher

import (
	"testing"

	"github.com/example/uniride/internal/models"
)

// Exhaustive sweep over the gender decision table. Cases that are not
// explicitly expected-true must be false when the rule says so, so every
// combination is enumerated against a reference of the written rules.
func TestEligibleCrossProduct(t *testing.T) {
	genders := []string{models.GenderMale, models.GenderFemale, ""}
	prefs := []string{models.GenderAny, models.GenderMale, models.GenderFemale, ""}
	bools := []bool{false, true}

	for _, g := range genders {
		for _, rp := range prefs {
			for _, wants := range bools {
				for _, fo := range bools {
					for _, ridePref := range prefs {
						e := eligibility{
							RequesterGender:  g,
							RequesterPref:    rp,
							WantsFemalesOnly: wants,
							RideFemalesOnly:  fo,
							RidePref:         ridePref,
						}
						want := reference(e)
						if got := eligible(e); got != want {
							t.Errorf("eligible(%+v) = %v, want %v", e, got, want)
						}
					}
				}
			}
		}
	}
}

// reference restates the eligibility rules independently of the implementation.
func reference(e eligibility) bool {
	if e.RideFemalesOnly && e.RequesterGender != models.GenderFemale {
		return false
	}
	if e.RequesterGender == models.GenderFemale && e.WantsFemalesOnly && !e.RideFemalesOnly {
		return false
	}
	rp := e.RidePref
	if rp == "" {
		rp = models.GenderAny
	}
	up := e.RequesterPref
	if up == "" {
		up = models.GenderAny
	}
	return rp == models.GenderAny || up == models.GenderAny || up == rp
}

func TestMaleNeverSeesFemalesOnly(t *testing.T) {
	e := eligibility{RequesterGender: models.GenderMale, RideFemalesOnly: true, RidePref: models.GenderAny}
	if eligible(e) {
		t.Fatal("male requester passed femalesOnly filter")
	}
	// even when he asks for it explicitly
	e.WantsFemalesOnly = true
	if eligible(e) {
		t.Fatal("wantsFemalesOnly bypassed the gender check")
	}
}

func TestUnknownGenderExcludedFromFemalesOnly(t *testing.T) {
	if eligible(eligibility{RideFemalesOnly: true}) {
		t.Fatal("unknown gender passed femalesOnly filter")
	}
	if !eligible(eligibility{}) {
		t.Fatal("unknown gender excluded from general ride")
	}
}
