package redisstream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xeda"
)

const (
	fieldID         = "id"
	fieldName       = "name"
	fieldPayload    = "payload"
	fieldProducedAt = "produced_at"
	fieldMetaPrefix = "meta:"

	// MetaStreamID carries the Redis entry id of a consumed message.
	MetaStreamID = "redis_stream_id"
)

// entryValues flattens m into XADD field/value pairs.
func entryValues(m *xeda.Message) map[string]any {
	vals := make(map[string]any, 4+len(m.Metadata))
	if m.ID != "" {
		vals[fieldID] = m.ID
	}
	vals[fieldName] = m.Name
	vals[fieldPayload] = m.Payload
	if !m.ProducedAt.IsZero() {
		vals[fieldProducedAt] = m.ProducedAt.UnixNano()
	}
	for k, v := range m.Metadata {
		vals[fieldMetaPrefix+k] = v
	}
	return vals
}

// decodeEntry rebuilds a message from a stream entry. The envelope id wins
// over the entry id, which is kept under MetaStreamID.
func decodeEntry(entryID string, vals map[string]any) *xeda.Message {
	msg := &xeda.Message{ID: entryID, Metadata: map[string]string{MetaStreamID: entryID}}
	for k, v := range vals {
		switch {
		case k == fieldID:
			if s := asString(v); s != "" {
				msg.ID = s
			}
		case k == fieldName:
			msg.Name = asString(v)
		case k == fieldPayload:
			switch p := v.(type) {
			case []byte:
				msg.Payload = p
			case string:
				msg.Payload = []byte(p)
			}
		case k == fieldProducedAt:
			if ns, ok := toInt64(v); ok && ns > 0 {
				msg.ProducedAt = time.Unix(0, ns)
			}
		case strings.HasPrefix(k, fieldMetaPrefix):
			msg.Metadata[strings.TrimPrefix(k, fieldMetaPrefix)] = asString(v)
		}
	}
	return msg
}

type delivery struct {
	t      *transport
	stream string
	group  string
	id     string
	msg    *xeda.Message
	once   sync.Once
}

func (d *delivery) Message() *xeda.Message { return d.msg }

func (d *delivery) Ack(ctx context.Context) error {
	var err error
	d.once.Do(func() { err = d.ack(ctx) })
	return err
}

func (d *delivery) ack(ctx context.Context) error {
	if err := d.t.client.XAck(ctx, d.stream, d.group, d.id).Err(); err != nil {
		return err
	}
	d.t.stats.acked.Add(1)
	if d.t.cfg.AutoDeleteOnAck {
		return d.t.client.XDel(ctx, d.stream, d.id).Err()
	}
	return nil
}

// Nack copies the entry to the dead letter stream and acks the original.
// Without a dead letter stream the entry stays pending for the claim loop.
func (d *delivery) Nack(ctx context.Context, reason error) error {
	var err error
	d.once.Do(func() {
		d.t.stats.nacked.Add(1)
		if d.t.cfg.DeadLetter == "" {
			return
		}
		vals := entryValues(d.msg)
		vals["orig_stream"] = d.stream
		vals["orig_id"] = d.id
		vals["error"] = fmt.Sprint(reason)
		if err = d.t.client.XAdd(ctx, &redis.XAddArgs{Stream: d.t.cfg.DeadLetter, Values: vals}).Err(); err != nil {
			return
		}
		err = d.ack(ctx)
	})
	return err
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	case []byte:
		return toInt64(string(n))
	}
	return 0, false
}
