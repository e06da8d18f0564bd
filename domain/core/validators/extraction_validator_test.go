package validators

import (
	"strings"
	"testing"

	"carechat/domain/config"
	"carechat/domain/core/entities"

	"github.com/stretchr/testify/assert"
)

func TestExtractionValidator_Normalize(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxFactsPerCategory = 2
	cfg.MaxFactLength = 10
	v := NewExtractionValidator(cfg)

	got := v.Normalize(entities.Facts{
		"Support Needs": {"  housing ", "", "housing", "food", "transport"},
		"goals":         {"a very long goal indeed"},
		"  ":            {"ignored"},
		"empty":         {" "},
	})

	assert.Equal(t, entities.Facts{
		"support_needs": {"housing", "food"},
		"goals":         {"a very lon"},
	}, got)
}

func TestExtractionValidator_CategoryLimit(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxCategories = 1
	v := NewExtractionValidator(cfg)

	got := v.Normalize(entities.Facts{"zeta": {"z"}, "alpha": {"a"}})

	assert.Equal(t, entities.Facts{"alpha": {"a"}}, got)
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "personal_info", NormalizeCategory(" Personal  Info"))
	assert.Equal(t, "goals", NormalizeCategory("GOALS"))
	assert.Equal(t, "a_b", NormalizeCategory("a-b"))
	assert.Equal(t, "", NormalizeCategory(strings.Repeat(" ", 3)))
}
