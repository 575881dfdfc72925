package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
)

var _ entitlements.ClientCounter = ClientRepository(nil)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "repo.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Organization{}, &models.Client{}, &models.OrganizationBilling{}, &models.BillingWebhookEvent{}))
	return db
}

func TestOrganizationRepository(t *testing.T) {
	repos := NewFactory(newTestDB(t)).GetRepositories()
	ctx := context.Background()

	org := &models.Organization{Name: "Peak Coaching", OwnerEmail: "owner@example.com"}
	require.NoError(t, repos.Organization.Create(ctx, org))
	assert.Len(t, org.ID, 36)

	got, err := repos.Organization.GetByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "Peak Coaching", got.Name)

	require.NoError(t, repos.Organization.Delete(ctx, org.ID))
	_, err = repos.Organization.GetByID(ctx, org.ID)
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
}

func TestClientRepositoryCountsLiveClients(t *testing.T) {
	db := newTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()

	for i, name := range []string{"Ann", "Ben", "Cleo"} {
		orgID := "org-1"
		if i == 2 {
			orgID = "org-2"
		}
		require.NoError(t, repos.Client.Create(ctx, &models.Client{OrganizationID: orgID, Name: name}))
	}

	count, err := repos.Client.CountClients(ctx, "org-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	clients, err := repos.Client.ListByOrganization(ctx, "org-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, clients, 2)

	// Soft-deleted clients no longer count against the limit.
	require.NoError(t, db.Delete(&clients[0]).Error)
	count, err = repos.Client.CountClients(ctx, "org-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func limitOf(limit int64) func(context.Context, int64) error {
	return func(_ context.Context, count int64) error {
		if count >= limit {
			return entitlements.ErrClientLimitReached
		}
		return nil
	}
}

func TestCreateWithinLimit(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	org := &models.Organization{Name: "Peak Coaching", OwnerEmail: "owner@example.com"}
	require.NoError(t, repos.Organization.Create(ctx, org))

	var seen []int64
	allow := func(ctx context.Context, count int64) error {
		seen = append(seen, count)
		return limitOf(2)(ctx, count)
	}
	for _, name := range []string{"Ann", "Ben"} {
		require.NoError(t, repos.Client.CreateWithinLimit(ctx, &models.Client{OrganizationID: org.ID, Name: name}, allow))
	}
	err := repos.Client.CreateWithinLimit(ctx, &models.Client{OrganizationID: org.ID, Name: "Cleo"}, allow)
	assert.ErrorIs(t, err, entitlements.ErrClientLimitReached)
	assert.Equal(t, []int64{0, 1, 2}, seen)

	count, err := repos.Client.CountClients(ctx, org.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestCreateWithinLimitUnknownOrganization(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	called := false
	err := repos.Client.CreateWithinLimit(context.Background(), &models.Client{OrganizationID: "org-missing", Name: "Ann"},
		func(context.Context, int64) error {
			called = true
			return nil
		})
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
	assert.False(t, called)
}

func TestCreateWithinLimitConcurrentCreatesNeverExceedLimit(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()
	org := &models.Organization{Name: "Peak Coaching", OwnerEmail: "owner@example.com"}
	require.NoError(t, repos.Organization.Create(ctx, org))
	require.NoError(t, repos.Client.Create(ctx, &models.Client{OrganizationID: org.ID, Name: "First"}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repos.Client.CreateWithinLimit(ctx, &models.Client{OrganizationID: org.ID, Name: fmt.Sprintf("Client %d", i)}, limitOf(3))
			if err != nil && !errors.Is(err, entitlements.ErrClientLimitReached) {
				t.Logf("create %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	count, err := repos.Client.CountClients(ctx, org.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, count, int64(3))
}

func TestFactoryReturnsSingletons(t *testing.T) {
	f := NewFactory(newTestDB(t))
	assert.Same(t, f.GetRepositories(), f.GetRepositories())
	assert.NotNil(t, f.GetOrganizationRepository())
	assert.NotNil(t, f.GetClientRepository())
	assert.NotNil(t, f.GetBillingStore())
}
