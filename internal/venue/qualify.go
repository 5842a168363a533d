// Package venue decides whether a classified location gates reward and
// notification side effects. Qualification is opt-in: only real nightlife and
// entertainment venues qualify, exclusion wins over qualification, and a
// missing classifier result never qualifies.
package venue

import (
	"strings"

	"github.com/clubsonar/setlistd/internal/models"
)

type Policy struct {
	excluded   []string
	qualifying []string
}

// Types that can never qualify. Generic locality types are in here too so a
// bare geocoder result (street_address, locality) does not slip through.
var defaultExcluded = []string{
	"home", "house", "residence", "residential", "apartment", "flat",
	"lodging", "hotel", "motel", "hostel", "guest_house",
	"store", "shop", "shopping", "supermarket", "grocery",
	"office", "workplace", "bank", "atm", "post_office",
	"school", "university", "hospital", "pharmacy", "doctor",
	"parking", "gas_station", "car_wash", "car_repair",
	"gym", "spa", "beauty_salon", "hair_care",
	"real_estate_agency", "insurance_agency", "lawyer",
	"church", "mosque", "synagogue", "temple", "cemetery",
	"locality", "political", "sublocality", "street_address", "route",
	"neighborhood", "premise", "subpremise", "natural_feature", "park",
}

var defaultQualifying = []string{
	"night_club", "nightclub", "club", "disco", "discotheque",
	"bar", "pub", "lounge", "cocktail_bar", "wine_bar",
	"casino", "event_venue", "concert_hall", "music_venue",
	"dance_club", "karaoke", "jazz_club",
}

func DefaultPolicy() *Policy {
	return NewPolicy(defaultExcluded, defaultQualifying)
}

func NewPolicy(excluded, qualifying []string) *Policy {
	p := &Policy{}
	for _, k := range excluded {
		p.excluded = append(p.excluded, strings.ToLower(k))
	}
	for _, k := range qualifying {
		p.qualifying = append(p.qualifying, strings.ToLower(k))
	}
	return p
}

// Qualifies reports whether a classifier tag set describes a qualifying
// venue. Exclusion is checked first across all tags: any excluded match
// disqualifies the venue regardless of what else is present.
func (p *Policy) Qualifies(tags []string) bool {
	if len(tags) == 0 {
		return false
	}

	for _, tag := range tags {
		lowered := strings.ToLower(tag)
		for _, excl := range p.excluded {
			if strings.Contains(lowered, excl) {
				return false
			}
		}
	}

	for _, tag := range tags {
		lowered := strings.ToLower(tag)
		for _, qual := range p.qualifying {
			if strings.Contains(lowered, qual) {
				return true
			}
		}
	}

	return false
}

// Snapshot builds the immutable venue snapshot attached to a session at
// start, with qualification evaluated once against this policy.
func (p *Policy) Snapshot(name, city, country string, tags []string) *models.VenueSnapshot {
	return &models.VenueSnapshot{
		Name:       name,
		City:       city,
		Country:    country,
		VenueTypes: tags,
		Qualifying: p.Qualifies(tags),
	}
}
