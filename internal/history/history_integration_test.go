//go:build integration

package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/order"
)

func startMongo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	endpoint, err := c.PortEndpoint(ctx, "27017/tcp", "mongodb")
	require.NoError(t, err)
	return endpoint
}

func TestLog_RecordAndList(t *testing.T) {
	ctx := context.Background()
	client, err := Connect(ctx, startMongo(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	log := New(client.Database("emart_test"))
	require.NoError(t, log.EnsureIndexes(ctx))

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	changes := []order.StatusChange{
		{OrderID: "o1", Source: order.SourceShop, From: "Pending", To: "Processing", ActorID: "owner", ActorRole: auth.RoleUser, At: base.Add(time.Minute)},
		{OrderID: "o1", Source: order.SourceCheckout, To: "Pending", ActorID: "u1", ActorRole: auth.RoleUser, At: base},
		{OrderID: "o2", Source: order.SourceCheckout, To: "Pending", ActorID: "u1", ActorRole: auth.RoleUser, At: base},
	}
	for _, c := range changes {
		require.NoError(t, log.Record(ctx, c))
	}

	got, err := log.List(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Pending", got[0].To)
	assert.Empty(t, got[0].From)
	assert.Equal(t, "Processing", got[1].To)
	assert.Equal(t, auth.RoleUser, got[1].ActorRole)
	assert.True(t, base.Add(time.Minute).Equal(got[1].At))

	none, err := log.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
