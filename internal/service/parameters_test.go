package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/refresh-orchestrator/internal/data"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
	"github.com/target/refresh-orchestrator/internal/mocks/memory"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func newParameterFixture(t *testing.T) (*ParameterService, *memory.Store) {
	t.Helper()
	store := memory.NewStore(data.NewFixedTimeProvider(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	svc, err := NewParameterService(ParameterServiceOptions{Repo: store, NewID: sequentialIDs()})
	require.NoError(t, err)
	return svc, store
}

func TestParameterService_Resolve(t *testing.T) {
	svc, store := newParameterFixture(t)
	deleted := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	user := "user-1"
	store.PutParameter(model.QueryParameter{ID: "p-org", OrganizationID: orgID, Name: "granularity", Value: "DAY"})
	store.PutParameter(model.QueryParameter{
		ID: "p-user", OrganizationID: orgID, UserID: &user, Name: "granularity", Value: "WEEK", DeletedAt: &deleted,
	})

	got, err := svc.Resolve(context.Background(), orgID, user)
	require.NoError(t, err)
	assert.Equal(t, model.ResolvedParameter{
		EffectiveValue:     "DAY",
		UserRecordID:       "p-user",
		OrgDefaultRecordID: "p-org",
		OrgDefaultValue:    "DAY",
	}, got["granularity"])

	_, err = svc.Resolve(context.Background(), " ", user)
	assert.True(t, apperrors.IsValidation(err))
}

func TestParameterService_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("organization defaults update in place", func(t *testing.T) {
		svc, store := newParameterFixture(t)
		store.PutParameter(model.QueryParameter{ID: "p-org", OrganizationID: orgID, Name: "granularity", Value: "DAY"})

		got, err := svc.Save(ctx, orgID, "", map[string]string{"Granularity": "MONTH", "Beginning Date": "2025-01-01"})
		require.NoError(t, err)
		assert.Equal(t, "MONTH", got["granularity"].EffectiveValue)
		assert.Equal(t, "p-org", got["granularity"].OrgDefaultRecordID)
		assert.Equal(t, "2025-01-01", got["beginning_date"].EffectiveValue)

		again, err := svc.Save(ctx, orgID, "", map[string]string{"beginning_date": "2025-02-01"})
		require.NoError(t, err)
		assert.Equal(t, got["beginning_date"].OrgDefaultRecordID, again["beginning_date"].OrgDefaultRecordID)
		assert.Equal(t, "2025-02-01", again["beginning_date"].EffectiveValue)
	})

	t.Run("user values override and revive deleted rows", func(t *testing.T) {
		svc, store := newParameterFixture(t)
		deleted := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
		user := "user-1"
		store.PutParameter(model.QueryParameter{ID: "p-org", OrganizationID: orgID, Name: "granularity", Value: "DAY"})
		store.PutParameter(model.QueryParameter{
			ID: "p-user", OrganizationID: orgID, UserID: &user, Name: "granularity", Value: "WEEK", DeletedAt: &deleted,
		})

		got, err := svc.Save(ctx, orgID, user, map[string]string{"granularity": "QUARTER"})
		require.NoError(t, err)
		assert.Equal(t, "QUARTER", got["granularity"].EffectiveValue)
		assert.Equal(t, "p-user", got["granularity"].UserRecordID)
		assert.Equal(t, "DAY", got["granularity"].OrgDefaultValue)

		orgView, err := svc.Resolve(ctx, orgID, "")
		require.NoError(t, err)
		assert.Equal(t, "DAY", orgView["granularity"].EffectiveValue)
	})

	t.Run("blank names are rejected", func(t *testing.T) {
		svc, _ := newParameterFixture(t)
		_, err := svc.Save(ctx, orgID, "", map[string]string{"  ": "x"})
		assert.True(t, apperrors.IsValidation(err))
	})
}

type failingParameters struct{}

func (failingParameters) ListForResolution(context.Context, string, string) ([]model.QueryParameter, error) {
	return nil, errors.New("connection refused")
}

func (failingParameters) Upsert(context.Context, []model.ParameterWrite) error {
	return errors.New("connection refused")
}

func TestParameterService_StoreFailure(t *testing.T) {
	svc, err := NewParameterService(ParameterServiceOptions{Repo: failingParameters{}})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), orgID, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsDependency(err))
}

func TestNewParameterService_RequiresRepo(t *testing.T) {
	_, err := NewParameterService(ParameterServiceOptions{})
	assert.EqualError(t, err, "ParameterRepository is required")
}
