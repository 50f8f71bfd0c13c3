package redisstream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xeda"
)

// testConfig returns a Config for the Redis at XEDA_TEST_REDIS_ADDR and
// skips the test when none is configured or reachable.
func testConfig(tb testing.TB) (Config, *redis.Client) {
	tb.Helper()
	addr := os.Getenv("XEDA_TEST_REDIS_ADDR")
	if addr == "" {
		tb.Skip("XEDA_TEST_REDIS_ADDR not set")
	}
	cfg := Defaults()
	cfg.Addr = addr
	cfg.Password = os.Getenv("XEDA_TEST_REDIS_PASSWORD")
	cfg.StreamPrefix = fmt.Sprintf("xeda-test-%d:", time.Now().UnixNano())
	cfg.Block = 200 * time.Millisecond

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		tb.Skipf("Redis not available: %v", err)
	}
	tb.Cleanup(func() { _ = client.Close() })
	return cfg, client
}

func dropStream(client *redis.Client, stream string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = client.Del(ctx, stream).Err()
}

func envelopeMessage(id string) *xeda.Message {
	return &xeda.Message{
		ID:         id,
		Name:       xeda.TypeEventPublish,
		Payload:    []byte(`{"specversion":"1.0","id":"` + id + `"}`),
		Metadata:   map[string]string{xeda.MetaID: id, xeda.MetaType: xeda.TypeEventPublish},
		ProducedAt: time.Unix(0, 1700000000000000000),
	}
}

func TestDecodeEntry_PrefersEnvelopeID(t *testing.T) {
	vals := map[string]any{}
	for k, v := range entryValues(envelopeMessage("env-1")) {
		switch b := v.(type) {
		case []byte:
			vals[k] = string(b)
		case int64:
			vals[k] = fmt.Sprint(b)
		default:
			vals[k] = v
		}
	}

	msg := decodeEntry("1700000000000-0", vals)
	assert.Equal(t, "env-1", msg.ID)
	assert.Equal(t, xeda.TypeEventPublish, msg.Name)
	assert.Equal(t, "1700000000000-0", msg.Metadata[MetaStreamID])
	assert.Equal(t, xeda.TypeEventPublish, msg.Metadata[xeda.MetaType])
	assert.Equal(t, int64(1700000000000000000), msg.ProducedAt.UnixNano())
	assert.JSONEq(t, `{"specversion":"1.0","id":"env-1"}`, string(msg.Payload))
}

func TestDecodeEntry_FallsBackToEntryID(t *testing.T) {
	msg := decodeEntry("5-0", map[string]any{fieldName: "x"})
	assert.Equal(t, "5-0", msg.ID)
	assert.True(t, msg.ProducedAt.IsZero())
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{
		"addr":           "redis:6379",
		"stream_prefix":  "opensocial:",
		"concurrency":    float64(2),
		"batch_size":     int64(10),
		"block":          "1s",
		"claim_min_idle": "30s",
		"dead_letter":    "opensocial:dlq",
		"auto_create":    false,
	})
	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, "opensocial:cms-events", cfg.Stream("cms-events"))
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.Block)
	assert.Equal(t, 30*time.Second, cfg.ClaimMinIdle)
	assert.Equal(t, "opensocial:dlq", cfg.DeadLetter)
	assert.False(t, cfg.AutoCreate)
	require.NoError(t, cfg.Validate())

	bad := Defaults()
	bad.Concurrency = 0
	assert.Error(t, bad.Validate())
}

func TestPublish_AppendsEntries(t *testing.T) {
	cfg, client := testConfig(t)
	tr, err := NewTransport(cfg)
	require.NoError(t, err)
	defer tr.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer dropStream(client, cfg.Stream("cms-events"))

	msgs := make([]*xeda.Message, 50)
	for i := range msgs {
		msgs[i] = envelopeMessage(fmt.Sprintf("env-%d", i))
	}
	require.NoError(t, tr.Publish(ctx, "cms-events", msgs...))

	n, err := client.XLen(ctx, cfg.Stream("cms-events")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}

func TestSubscribe_ConsumesAndAcks(t *testing.T) {
	cfg, client := testConfig(t)
	cfg.Concurrency = 1
	tr, err := NewTransport(cfg)
	require.NoError(t, err)
	defer tr.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer dropStream(client, cfg.Stream("cms-events"))

	const total = 20
	for i := 0; i < total; i++ {
		require.NoError(t, tr.Publish(ctx, "cms-events", envelopeMessage(fmt.Sprintf("env-%d", i))))
	}

	var consumed atomic.Int64
	seen := make(chan string, total)
	sub, err := tr.Subscribe(ctx, "cms-events", "crm", func(d xeda.Delivery) {
		seen <- d.Message().ID
		_ = d.Ack(ctx)
		consumed.Add(1)
	})
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return consumed.Load() == total }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "env-0", <-seen)

	pending, err := client.XPending(ctx, cfg.Stream("cms-events"), "crm").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestNack_WritesDeadLetter(t *testing.T) {
	cfg, client := testConfig(t)
	cfg.DeadLetter = cfg.StreamPrefix + "dlq"
	tr, err := NewTransport(cfg)
	require.NoError(t, err)
	defer tr.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer dropStream(client, cfg.Stream("cms-events"))
	defer dropStream(client, cfg.DeadLetter)

	done := make(chan struct{})
	sub, err := tr.Subscribe(ctx, "cms-events", "crm", func(d xeda.Delivery) {
		_ = d.Nack(ctx, errors.New("schema mismatch"))
		close(done)
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, tr.Publish(ctx, "cms-events", envelopeMessage("env-dlq")))
	<-done

	entries, err := client.XRange(ctx, cfg.DeadLetter, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "env-dlq", entries[0].Values[fieldID])
	assert.Equal(t, "schema mismatch", entries[0].Values["error"])
	assert.Equal(t, cfg.Stream("cms-events"), entries[0].Values["orig_stream"])
}

func BenchmarkPublish_Single(b *testing.B) {
	cfg, client := testConfig(b)
	tr, err := NewTransport(cfg)
	require.NoError(b, err)
	defer tr.Close(context.Background())
	defer dropStream(client, cfg.Stream("bench"))

	ctx := context.Background()
	msg := envelopeMessage("bench")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tr.Publish(ctx, "bench", msg); err != nil {
			b.Fatal(err)
		}
	}
}
