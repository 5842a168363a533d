package venue

import "testing"

func TestQualifies_Nightclub(t *testing.T) {
	p := DefaultPolicy()

	if !p.Qualifies([]string{"night_club", "point_of_interest"}) {
		t.Error("Expected night_club to qualify")
	}
	if !p.Qualifies([]string{"bar"}) {
		t.Error("Expected bar to qualify")
	}
}

func TestQualifies_ExclusionWins(t *testing.T) {
	p := DefaultPolicy()

	// Both an excluded and a qualifying tag: exclusion has precedence.
	if p.Qualifies([]string{"night_club", "home"}) {
		t.Error("Expected excluded tag to override qualifying tag")
	}
	if p.Qualifies([]string{"hotel", "bar"}) {
		t.Error("Expected hotel bar to be excluded")
	}
}

func TestQualifies_EmptyTags(t *testing.T) {
	p := DefaultPolicy()

	if p.Qualifies(nil) {
		t.Error("Expected no classifier result to not qualify")
	}
	if p.Qualifies([]string{}) {
		t.Error("Expected empty tag set to not qualify")
	}
}

func TestQualifies_GenericTags(t *testing.T) {
	p := DefaultPolicy()

	if p.Qualifies([]string{"establishment", "point_of_interest"}) {
		t.Error("Expected generic tags alone to not qualify")
	}
	if p.Qualifies([]string{"street_address"}) {
		t.Error("Expected bare geocoder result to not qualify")
	}
}

func TestQualifies_SubstringMatch(t *testing.T) {
	p := DefaultPolicy()

	if !p.Qualifies([]string{"jazz_club_venue"}) {
		t.Error("Expected substring match on qualifying keyword")
	}
	if p.Qualifies([]string{"residential_area", "dance_club"}) {
		t.Error("Expected substring match on excluded keyword to win")
	}
}

func TestQualifies_CaseInsensitive(t *testing.T) {
	p := DefaultPolicy()

	if !p.Qualifies([]string{"Night_Club"}) {
		t.Error("Expected tag matching to be case-insensitive")
	}
}

func TestSnapshot(t *testing.T) {
	p := DefaultPolicy()

	snap := p.Snapshot("Le Baron", "Paris", "FR", []string{"night_club"})
	if !snap.Qualifying {
		t.Error("Expected qualifying snapshot")
	}
	if snap.Name != "Le Baron" || snap.City != "Paris" || snap.Country != "FR" {
		t.Errorf("Snapshot fields not carried: %+v", snap)
	}

	snap = p.Snapshot("Chez Moi", "", "", nil)
	if snap.Qualifying {
		t.Error("Expected non-qualifying snapshot for missing tags")
	}
}
