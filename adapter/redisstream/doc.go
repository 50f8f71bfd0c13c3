// Package redisstream carries xeda envelopes over Redis Streams.
//
// Transport name: "redis-streams"
//
// Each topic maps to the stream StreamPrefix+topic. An entry holds the
// envelope id, the CloudEvents type, the encoded envelope and its
// attributes as "meta:" fields, so consumers can route on ce_type without
// decoding the payload.
//
// Config keys: addr, username, password, db, tls, tls_server_name,
// stream_prefix, consumer, concurrency, batch_size, block, auto_create,
// auto_delete_on_ack, dead_letter, max_len_approx, claim_min_idle,
// claim_batch, claim_interval.
//
//	bus, _ := xeda.NewBusBuilder().
//	    WithTransport(redisstream.TransportName, map[string]any{
//	        "addr":          "localhost:6379",
//	        "stream_prefix": "opensocial:",
//	        "dead_letter":   "opensocial:dlq",
//	    }).
//	    Build()
package redisstream
