package billing_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookpage/svc/billing"
)

func TestMemoryEventLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := billing.NewMemoryEventLog(time.Hour)

	seen, err := l.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, l.MarkProcessed(ctx, "evt_1"))
	require.NoError(t, l.MarkProcessed(ctx, "evt_1"))

	seen, err = l.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

// Runs against a real server when TEST_REDIS_URL is set.
func TestRedisEventLog(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	l := billing.NewRedisEventLog(client, time.Minute)
	id := "evt_" + uuid.NewString()

	seen, err := l.Seen(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, l.MarkProcessed(ctx, id))
	seen, err = l.Seen(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := client.TTL(ctx, "billing:stripe:event:"+id).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
