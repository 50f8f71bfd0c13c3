package xeda

import "time"

const (
	SpecVersion     = "1.0"
	ContentTypeJSON = "application/json"
)

// Event types. Each one doubles as the broker topic name.
const (
	TypeEventCreate    = "com.getopensocial.cms.event.create"
	TypeEventUpdate    = "com.getopensocial.cms.event.update"
	TypeEventPublish   = "com.getopensocial.cms.event.publish"
	TypeEventUnpublish = "com.getopensocial.cms.event.unpublish"
	TypeEventDelete    = "com.getopensocial.cms.event.delete"
)

// EventTypes lists every type emitted by EventHandler.
var EventTypes = []string{
	TypeEventCreate,
	TypeEventUpdate,
	TypeEventPublish,
	TypeEventUnpublish,
	TypeEventDelete,
}

// Operation tags a lifecycle transition.
type Operation string

const (
	OpCreate    Operation = "create"
	OpUpdate    Operation = "update"
	OpPublish   Operation = "publish"
	OpUnpublish Operation = "unpublish"
	OpDelete    Operation = "delete"
)

// Envelope is one CloudEvents 1.0 notification in structured JSON mode.
// It is built, dispatched once and discarded.
type Envelope struct {
	SpecVersion     string    `json:"specversion"`
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	Type            string    `json:"type"`
	DataContentType string    `json:"datacontenttype,omitempty"`
	DataSchema      string    `json:"dataschema,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	Time            time.Time `json:"time"`
	Data            EventData `json:"data"`
}

// EventData is the envelope payload.
type EventData struct {
	Event EventEntityData `json:"event"`
	Actor Actor           `json:"actor"`
}

// Actor attributes a change. At most one field is set.
type Actor struct {
	Application *Application `json:"application"`
	User        *User        `json:"user"`
}

// EventEntityData is the normalized snapshot of an event node.
type EventEntityData struct {
	ID         string            `json:"id"`
	Created    string            `json:"created"`
	Updated    string            `json:"updated"`
	Status     string            `json:"status"`
	Label      string            `json:"label"`
	Visibility ContentVisibility `json:"visibility"`
	Group      *Entity           `json:"group"`
	Author     *User             `json:"author"`
	AllDay     bool              `json:"allDay"`
	Start      string            `json:"start"`
	End        string            `json:"end"`
	Timezone   string            `json:"timezone"`
	Address    *Address          `json:"address"`
	Enrollment Enrollment        `json:"enrollment"`
	Href       Href              `json:"href"`
	Type       *string           `json:"type"`
}

// Content status values.
const (
	StatusPublished   = "published"
	StatusUnpublished = "unpublished"
	StatusRemoved     = "removed"
)
