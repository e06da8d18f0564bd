package entities

import (
	"testing"
	"time"

	"carechat/domain/core/valueobjects"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestProfile_Merge(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	owner := valueobjects.NewIdentity("a@b.com")

	t.Run("union keeps existing facts", func(t *testing.T) {
		// Arrange
		p := ReconstructProfile(owner, Facts{"goals": {"run"}}, now, 1)

		// Act
		added := p.Merge(Facts{"goals": {"sleep", "run"}, "preferences": {"tea"}}, now.Add(time.Minute))

		// Assert
		assert.Equal(t, 2, added)
		want := Facts{"goals": {"run", "sleep"}, "preferences": {"tea"}}
		if diff := cmp.Diff(want, p.Facts()); diff != "" {
			t.Errorf("facts mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, 2, p.Version())
		assert.Len(t, p.GetUncommittedEvents(), 1)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := Facts{"goals": {"run"}, "challenges": {"stress"}}
		once := NewProfile(owner)
		once.Merge(f, now)
		twice := NewProfile(owner)
		twice.Merge(f, now)
		added := twice.Merge(f, now.Add(time.Second))

		assert.Zero(t, added)
		assert.Equal(t, once.Facts(), twice.Facts())
		assert.Equal(t, now, twice.UpdatedAt())
	})

	t.Run("commutative", func(t *testing.T) {
		f1 := Facts{"goals": {"run"}}
		f2 := Facts{"goals": {"sleep"}, "preferences": {"mornings"}}

		a := NewProfile(owner)
		a.Merge(f1, now)
		a.Merge(f2, now)

		b := NewProfile(owner)
		b.Merge(f2, now)
		b.Merge(f1, now)

		if diff := cmp.Diff(a.Facts(), b.Facts()); diff != "" {
			t.Errorf("merge order changed the profile (-ab +ba):\n%s", diff)
		}
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		p := NewProfile(owner)
		assert.Zero(t, p.Merge(Facts{"goals": {}, "": {"x"}}, now))
		assert.True(t, p.IsEmpty())
		assert.Empty(t, p.GetUncommittedEvents())
	})
}
