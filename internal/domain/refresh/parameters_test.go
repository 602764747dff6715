package refresh

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/refresh-orchestrator/internal/domain/model"
)

func strPtr(s string) *string { return &s }

func sequentialIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("generated-%d", n)
	}
}

func TestResolveParameters_DeletedUserRowFallsBackToOrgDefault(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	rows := []model.QueryParameter{
		{ID: "org-freq", OrganizationID: "o1", Name: "freq", Value: "DAY", CreatedAt: now.Add(-time.Hour)},
		{ID: "user-freq", OrganizationID: "o1", UserID: strPtr("u1"), Name: "freq", Value: "WEEK", CreatedAt: now, DeletedAt: &now},
	}

	got := ResolveParameters(rows, "u1", sequentialIDs())

	require.Contains(t, got, "freq")
	assert.Equal(t, model.ResolvedParameter{
		EffectiveValue:     "DAY",
		UserRecordID:       "user-freq",
		OrgDefaultRecordID: "org-freq",
		OrgDefaultValue:    "DAY",
	}, got["freq"])
}

func TestResolveParameters_UserOverride(t *testing.T) {
	rows := []model.QueryParameter{
		{ID: "org", Name: "region", Value: "us"},
		{ID: "mine", UserID: strPtr("u1"), Name: "region", Value: "eu"},
		{ID: "theirs", UserID: strPtr("u2"), Name: "region", Value: "apac"},
	}

	got := ResolveParameters(rows, "u1", sequentialIDs())
	assert.Equal(t, "eu", got["region"].EffectiveValue)
	assert.Equal(t, "mine", got["region"].UserRecordID)

	asService := ResolveParameters(rows, "", sequentialIDs())
	assert.Equal(t, "us", asService["region"].EffectiveValue)
	assert.Equal(t, "generated-1", asService["region"].UserRecordID)
}

func TestResolveParameters_EmptyUserValueFallsThrough(t *testing.T) {
	rows := []model.QueryParameter{
		{ID: "org", Name: "limit", Value: "10"},
		{ID: "mine", UserID: strPtr("u1"), Name: "limit", Value: ""},
	}
	got := ResolveParameters(rows, "u1", sequentialIDs())
	assert.Equal(t, "10", got["limit"].EffectiveValue)
	assert.Equal(t, "mine", got["limit"].UserRecordID)
}

func TestResolveParameters_FreshRecordIDs(t *testing.T) {
	rows := []model.QueryParameter{
		{ID: "mine", UserID: strPtr("u1"), Name: "Beginning Date", Value: "2024-01-01"},
	}
	got := ResolveParameters(rows, "u1", sequentialIDs())

	rp, ok := got["beginning_date"]
	require.True(t, ok, "names are normalized")
	assert.Equal(t, "2024-01-01", rp.EffectiveValue)
	assert.Equal(t, "mine", rp.UserRecordID)
	assert.Equal(t, "generated-1", rp.OrgDefaultRecordID)
	assert.Empty(t, rp.OrgDefaultValue)
}

func TestResolveParameters_DefaultGeneratorFillsIDs(t *testing.T) {
	got := ResolveParameters([]model.QueryParameter{{ID: "org", Name: "x", Value: "1"}}, "", nil)
	assert.NotEmpty(t, got["x"].UserRecordID)
	assert.NotEqual(t, got["x"].UserRecordID, got["x"].OrgDefaultRecordID)
}

func TestResolveParameters_EarliestOrgDefaultWins(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.QueryParameter{
		{ID: "b", Name: "freq", Value: "MONTH", CreatedAt: base.Add(time.Minute)},
		{ID: "a", Name: "freq", Value: "DAY", CreatedAt: base},
		{ID: "c", Name: "freq", Value: "YEAR", CreatedAt: base},
	}
	got := ResolveParameters(rows, "", sequentialIDs())
	assert.Equal(t, "DAY", got["freq"].EffectiveValue)
	assert.Equal(t, "a", got["freq"].OrgDefaultRecordID)
}

func TestResolveParameters_OrderIndependent(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deleted := base.Add(time.Hour)
	rows := []model.QueryParameter{
		{ID: "o1", Name: "freq", Value: "DAY", CreatedAt: base},
		{ID: "o2", Name: "freq", Value: "WEEK", CreatedAt: base.Add(time.Second)},
		{ID: "u1", UserID: strPtr("u"), Name: "freq", Value: "HOUR", CreatedAt: base, DeletedAt: &deleted},
		{ID: "u2", UserID: strPtr("u"), Name: "freq", Value: "MINUTE", CreatedAt: base.Add(time.Minute)},
		{ID: "o3", Name: "limit", Value: "5", CreatedAt: base},
		{ID: "u3", UserID: strPtr("u"), Name: "limit", Value: "7", CreatedAt: base, DeletedAt: &deleted},
		{ID: "o4", Name: "gone", Value: "x", CreatedAt: base, DeletedAt: &deleted},
	}

	want := map[string]string{"freq": "MINUTE", "limit": "5", "gone": ""}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]model.QueryParameter(nil), rows...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := ResolveParameters(shuffled, "u", sequentialIDs())
		assert.Equal(t, want, Values(got), "iteration %d", i)
		assert.Equal(t, "o1", got["freq"].OrgDefaultRecordID)
		assert.Equal(t, "u2", got["freq"].UserRecordID)
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "beginning_date", NormalizeName("  Beginning Date "))
	assert.Equal(t, "freq", NormalizeName("FREQ"))
	assert.Equal(t, "", NormalizeName("   "))
}
