package xeda

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type dispatchCall struct {
	Topic    string
	Envelope Envelope
}

// recordingDispatcher records every Dispatch call and optionally fails.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, topic string, env Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{Topic: topic, Envelope: env})
	return d.err
}

func (d *recordingDispatcher) Calls() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

// sequenceIDs hands out env-1, env-2, ... and counts calls.
type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("env-%d", s.n)
}

func (s *sequenceIDs) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func alice() *Account {
	return &Account{
		UUID:        "a1f0c9a2-7a47-4d7f-9b1e-6c1c0c7d0a11",
		Created:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Changed:     time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Active:      true,
		DisplayName: "alice",
		Email:       "alice@example.com",
		Timezone:    "Europe/Amsterdam",
		Language:    "en",
		Roles:       []string{"authenticated", "contentmanager"},
		URL:         "https://intranet.example.com/user/7",
	}
}

func eventNode() *Node {
	return &Node{
		UUID:       "5a6e0e7c-3f1b-4e0a-9d2a-0b8c7f0c1d22",
		Created:    time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC),
		Changed:    time.Date(2025, 1, 12, 14, 0, 0, 0, time.UTC),
		Published:  false,
		Title:      "Quarterly town hall",
		Visibility: "group",
		Group: &Group{
			UUID:  "9c1d2e3f-0000-4000-8000-000000000001",
			Label: "Engineering",
			URL:   "https://intranet.example.com/group/3",
		},
		Author: alice(),
		Start:  time.Date(2025, 2, 1, 15, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 2, 1, 17, 0, 0, 0, time.UTC),
		Address: &PostalAddress{
			CountryCode:  "NL",
			Locality:     "Amsterdam",
			PostalCode:   "1011 AB",
			AddressLine1: "Dam 1",
		},
		Location:      "Main hall",
		EnrollEnabled: true,
		EnrollMethod:  1,
		URL:           "https://intranet.example.com/node/42",
		EventType:     &Term{UUID: "t-1", Label: "Meeting"},
	}
}
