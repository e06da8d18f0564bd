package validators

import (
	"sort"
	"strings"
	"unicode/utf8"

	"carechat/domain/config"
	"carechat/domain/core/entities"
)

// ExtractionValidator normalizes facts returned by a backend before they are
// merged into a profile
type ExtractionValidator struct {
	maxCategories       int
	maxFactsPerCategory int
	maxFactLength       int
}

// NewExtractionValidator creates a validator from the domain limits
func NewExtractionValidator(cfg *config.DomainConfig) *ExtractionValidator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &ExtractionValidator{
		maxCategories:       cfg.MaxCategories,
		maxFactsPerCategory: cfg.MaxFactsPerCategory,
		maxFactLength:       cfg.MaxFactLength,
	}
}

// Normalize trims facts, folds category names to snake case, drops empty
// entries and applies the configured limits. Categories are kept in sorted
// order when the limit cuts some off, so the same input always yields the
// same output.
func (v *ExtractionValidator) Normalize(in entities.Facts) entities.Facts {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(entities.Facts)
	for _, raw := range names {
		category := NormalizeCategory(raw)
		if category == "" {
			continue
		}
		if _, exists := out[category]; !exists && len(out) >= v.maxCategories {
			continue
		}

		seen := make(map[string]struct{})
		for _, f := range out[category] {
			seen[f] = struct{}{}
		}
		facts := out[category]
		for _, fact := range in[raw] {
			fact = strings.TrimSpace(fact)
			if fact == "" {
				continue
			}
			if utf8.RuneCountInString(fact) > v.maxFactLength {
				fact = string([]rune(fact)[:v.maxFactLength])
			}
			if _, dup := seen[fact]; dup {
				continue
			}
			if len(facts) >= v.maxFactsPerCategory {
				break
			}
			seen[fact] = struct{}{}
			facts = append(facts, fact)
		}
		if len(facts) > 0 {
			out[category] = facts
		}
	}
	return out
}

// NormalizeCategory lowercases a category and joins its words with '_'
func NormalizeCategory(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(raw)), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	})
	return strings.Join(fields, "_")
}
