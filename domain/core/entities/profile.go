package entities

import (
	"sort"
	"time"

	"carechat/domain/core/valueobjects"
	"carechat/domain/events"
)

// Facts maps a category name to a list of fact strings
type Facts map[string][]string

// Profile accumulates facts about a user across conversations.
// Within a category facts are a set; merging is a union.
type Profile struct {
	owner      valueobjects.Identity
	categories map[string]map[string]struct{}
	updatedAt  time.Time
	version    int

	events []events.DomainEvent
}

// NewProfile creates an empty profile
func NewProfile(owner valueobjects.Identity) *Profile {
	return &Profile{
		owner:      owner,
		categories: make(map[string]map[string]struct{}),
	}
}

// ReconstructProfile rebuilds a profile from storage
func ReconstructProfile(owner valueobjects.Identity, facts Facts, updatedAt time.Time, version int) *Profile {
	p := NewProfile(owner)
	for category, list := range facts {
		p.addAll(category, list)
	}
	p.updatedAt = updatedAt
	p.version = version
	return p
}

func (p *Profile) Owner() valueobjects.Identity { return p.owner }
func (p *Profile) UpdatedAt() time.Time         { return p.updatedAt }
func (p *Profile) Version() int                 { return p.version }

// IsEmpty reports whether the profile holds no facts
func (p *Profile) IsEmpty() bool {
	return len(p.categories) == 0
}

// Merge unions the extracted facts into the profile and returns how many new
// facts were added. Merging the same facts twice adds nothing the second time,
// and the order of merges does not change the result.
func (p *Profile) Merge(extracted Facts, now time.Time) int {
	added := 0
	touched := make([]string, 0, len(extracted))
	for category, list := range extracted {
		n := p.addAll(category, list)
		if n > 0 {
			touched = append(touched, category)
		}
		added += n
	}

	if added > 0 {
		sort.Strings(touched)
		p.updatedAt = now
		p.version++
		p.events = append(p.events, events.NewProfileMerged(p.owner, touched, added, now))
	}
	return added
}

func (p *Profile) addAll(category string, list []string) int {
	if category == "" || len(list) == 0 {
		return 0
	}
	set, ok := p.categories[category]
	if !ok {
		set = make(map[string]struct{}, len(list))
	}
	added := 0
	for _, fact := range list {
		if fact == "" {
			continue
		}
		if _, exists := set[fact]; !exists {
			set[fact] = struct{}{}
			added++
		}
	}
	if len(set) > 0 {
		p.categories[category] = set
	}
	return added
}

// Categories returns category names in sorted order
func (p *Profile) Categories() []string {
	names := make([]string, 0, len(p.categories))
	for name := range p.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FactsIn returns the facts of a category in sorted order
func (p *Profile) FactsIn(category string) []string {
	set := p.categories[category]
	facts := make([]string, 0, len(set))
	for fact := range set {
		facts = append(facts, fact)
	}
	sort.Strings(facts)
	return facts
}

// Facts returns a sorted copy of every category
func (p *Profile) Facts() Facts {
	out := make(Facts, len(p.categories))
	for _, name := range p.Categories() {
		out[name] = p.FactsIn(name)
	}
	return out
}

// GetUncommittedEvents returns events raised since load
func (p *Profile) GetUncommittedEvents() []events.DomainEvent {
	return p.events
}

// MarkEventsAsCommitted clears pending events
func (p *Profile) MarkEventsAsCommitted() {
	p.events = nil
}
