// Package store keeps event nodes in a SQL database. It backs the scheduled
// publisher and content moderation with sqlite or postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/trickstertwo/xeda"
)

// ErrNotFound is returned when no node has the requested uuid.
var ErrNotFound = errors.New("store: node not found")

const schema = `CREATE TABLE IF NOT EXISTS event_nodes (
	uuid       TEXT PRIMARY KEY,
	published  BOOLEAN NOT NULL,
	publish_on BIGINT,
	doc        TEXT NOT NULL
)`

// SQLStore stores each node as a JSON document next to the columns the
// scheduler filters on.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// Open connects with driver ("sqlite" or "postgres") and dsn.
func Open(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one connection so an in-memory database is shared
		db.SetMaxOpenConns(1)
	}
	return New(db, driver), nil
}

// New wraps an existing handle. driver selects the placeholder style.
func New(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, postgres: driver == "postgres"}
}

// Migrate creates the table when it is missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Close() error { return s.db.Close() }

// bind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) bind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LoadNode returns the node with uuid id.
func (s *SQLStore) LoadNode(ctx context.Context, id string) (*xeda.Node, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.bind("SELECT doc FROM event_nodes WHERE uuid = ?"), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	return decodeNode(doc)
}

// SaveNode inserts or replaces n.
func (s *SQLStore) SaveNode(ctx context.Context, n *xeda.Node) error {
	if n == nil || n.UUID == "" {
		return fmt.Errorf("%w: node without uuid", xeda.ErrMalformedEntity)
	}
	doc, err := json.Marshal(n)
	if err != nil {
		return err
	}
	var publishOn sql.NullInt64
	if !n.PublishOn.IsZero() {
		publishOn = sql.NullInt64{Int64: n.PublishOn.Unix(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, s.bind(`INSERT INTO event_nodes (uuid, published, publish_on, doc) VALUES (?, ?, ?, ?)
ON CONFLICT (uuid) DO UPDATE SET published = excluded.published, publish_on = excluded.publish_on, doc = excluded.doc`),
		n.UUID, n.Published, publishOn, string(doc))
	if err != nil {
		return fmt.Errorf("store: save %s: %w", n.UUID, err)
	}
	return nil
}

// DuePublications lists unpublished nodes whose publish_on is at or before
// now, oldest first.
func (s *SQLStore) DuePublications(ctx context.Context, now time.Time) ([]*xeda.Node, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT doc FROM event_nodes
WHERE published = ? AND publish_on IS NOT NULL AND publish_on <= ?
ORDER BY publish_on`), false, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: due publications: %w", err)
	}
	defer rows.Close()

	var nodes []*xeda.Node
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		n, err := decodeNode(doc)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func decodeNode(doc string) (*xeda.Node, error) {
	var n xeda.Node
	if err := json.Unmarshal([]byte(doc), &n); err != nil {
		return nil, fmt.Errorf("store: decode node: %w", err)
	}
	return &n, nil
}
