package xeda

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces globally unique identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string { return uuid.NewString() }

// Mapper turns event nodes into envelopes. It is bound to one request: the
// source and actor are resolved once in NewMapper and reused.
type Mapper struct {
	ids    IDGenerator
	loc    *time.Location
	source string
	app    *Application
	user   *User
	err    error
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(g IDGenerator) MapperOption {
	return func(m *Mapper) {
		if g != nil {
			m.ids = g
		}
	}
}

// WithLocation sets the timezone used for timestamps and the timezone field.
func WithLocation(loc *time.Location) MapperOption {
	return func(m *Mapper) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// NewMapper binds a mapper to the request described by rc.
func NewMapper(rc RequestContext, opts ...MapperOption) *Mapper {
	m := &Mapper{
		ids:    UUIDGenerator{},
		loc:    time.UTC,
		source: rc.Path,
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}

	app, account := ResolveActor(rc.RouteName, rc.Identity)
	m.app = ApplicationFromID(app)
	// An identity that cannot be normalized fails every build of this request.
	m.user, m.err = UserFromAccount(account, m.loc)
	return m
}

// Location returns the configured timezone.
func (m *Mapper) Location() *time.Location { return m.loc }

// BuildEnvelope converts node into an envelope of eventType. Only OpDelete
// changes the outcome: the status becomes removed whatever the publish flag.
func (m *Mapper) BuildEnvelope(node *Node, eventType string, op Operation) (Envelope, error) {
	if node == nil {
		return Envelope{}, fmt.Errorf("%w: nil node", ErrMalformedEntity)
	}
	if m.err != nil {
		return Envelope{}, fmt.Errorf("actor: %w", m.err)
	}
	if node.UUID == "" {
		return Envelope{}, fmt.Errorf("%w: node without uuid", ErrMalformedEntity)
	}
	if node.Created.IsZero() {
		return Envelope{}, fmt.Errorf("%w: node %s has no creation time", ErrMalformedEntity, node.UUID)
	}

	status := StatusUnpublished
	switch {
	case op == OpDelete:
		status = StatusRemoved
	case node.Published:
		status = StatusPublished
	}

	group, err := EntityFromGroup(node.Group)
	if err != nil {
		return Envelope{}, err
	}
	if node.Author == nil {
		return Envelope{}, fmt.Errorf("%w: node %s has no author", ErrMalformedEntity, node.UUID)
	}
	author, err := UserFromAccount(node.Author, m.loc)
	if err != nil {
		return Envelope{}, err
	}
	address, err := AddressFromField(node.Address, node.Location)
	if err != nil {
		return Envelope{}, fmt.Errorf("node %s: %w", node.UUID, err)
	}
	method, err := EnrollmentMethod(node.EnrollMethod)
	if err != nil {
		return Envelope{}, fmt.Errorf("node %s: %w", node.UUID, err)
	}
	href, err := HrefFromURL(node.URL)
	if err != nil {
		return Envelope{}, fmt.Errorf("node %s: %w", node.UUID, err)
	}
	var eventTypeLabel *string
	if node.EventType != nil {
		label := node.EventType.Label
		eventTypeLabel = &label
	}

	return Envelope{
		SpecVersion:     SpecVersion,
		ID:              m.ids.Generate(),
		Source:          m.source,
		Type:            eventType,
		DataContentType: ContentTypeJSON,
		// Creation time for every operation, not the time of the change.
		Time: node.Created.In(m.loc),
		Data: EventData{
			Event: EventEntityData{
				ID:         node.UUID,
				Created:    FormatDateTime(node.Created, m.loc),
				Updated:    FormatDateTime(node.Changed, m.loc),
				Status:     status,
				Label:      node.Title,
				Visibility: VisibilityFromNode(node),
				Group:      group,
				Author:     author,
				AllDay:     node.AllDay,
				Start:      FormatDateTime(node.Start, m.loc),
				End:        FormatDateTime(node.End, m.loc),
				Timezone:   m.loc.String(),
				Address:    address,
				Enrollment: Enrollment{
					Enabled: node.EnrollEnabled,
					Method:  method,
				},
				Href: href,
				Type: eventTypeLabel,
			},
			Actor: Actor{
				Application: m.app,
				User:        m.user,
			},
		},
	}, nil
}
