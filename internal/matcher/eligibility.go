package matcher

import "github.com/example/uniride/internal/models"

// eligibility is the full gender-visibility context for one requester/ride
// pair. The rules are checked as a pure decision function because earlier
// revisions of this system applied them inconsistently across endpoints; a
// single table keeps every caller on the same behavior.
type eligibility struct {
	RequesterGender  string // "male", "female", or "" when unknown
	RequesterPref    string // requester's declared gender preference
	WantsFemalesOnly bool   // requester explicitly asked for females-only rides
	RideFemalesOnly  bool
	RidePref         string // ride's gender preference, "any" when unset
}

// eligible reports whether the ride may be shown to, and joined by, the
// requester.
//
// Rules, in order:
//  1. a femalesOnly ride is visible only to requesters recorded as female;
//     male and unknown-gender requesters are excluded unconditionally.
//  2. a female requester who explicitly wants a females-only ride sees only
//     femalesOnly rides; without that flag she sees both kinds.
//  3. a ride preferring a specific gender matches only requesters whose own
//     declared preference is "any" (or unset) or the same value.
func eligible(e eligibility) bool {
	if e.RideFemalesOnly && e.RequesterGender != models.GenderFemale {
		return false
	}
	if e.WantsFemalesOnly && e.RequesterGender == models.GenderFemale && !e.RideFemalesOnly {
		return false
	}
	ridePref := e.RidePref
	if ridePref == "" {
		ridePref = models.GenderAny
	}
	reqPref := e.RequesterPref
	if reqPref == "" {
		reqPref = models.GenderAny
	}
	if ridePref != models.GenderAny && reqPref != models.GenderAny && reqPref != ridePref {
		return false
	}
	return true
}
