package xeda

import "time"

// Node is the event content item as the content subsystem hands it over.
// References (Group, Author, Address, EventType) are nil when the host field
// is empty.
type Node struct {
	UUID      string    `json:"uuid" yaml:"uuid"`
	Created   time.Time `json:"created" yaml:"created"`
	Changed   time.Time `json:"changed" yaml:"changed"`
	Published bool      `json:"published" yaml:"published"`
	Title     string    `json:"title" yaml:"title"`

	// Visibility is the content visibility field value: public, community,
	// group or role.
	Visibility      string   `json:"visibility" yaml:"visibility"`
	VisibilityRoles []string `json:"visibility_roles,omitempty" yaml:"visibility_roles,omitempty"`

	Group  *Group   `json:"group,omitempty" yaml:"group,omitempty"`
	Author *Account `json:"author,omitempty" yaml:"author,omitempty"`

	AllDay   bool           `json:"all_day" yaml:"all_day"`
	Start    time.Time      `json:"start" yaml:"start"`
	End      time.Time      `json:"end" yaml:"end"`
	Address  *PostalAddress `json:"address,omitempty" yaml:"address,omitempty"`
	Location string         `json:"location,omitempty" yaml:"location,omitempty"`

	EnrollEnabled bool `json:"enroll_enabled" yaml:"enroll_enabled"`
	// EnrollMethod is the stored method code, an index into EnrollmentMethods.
	EnrollMethod int `json:"enroll_method" yaml:"enroll_method"`

	// URL is the canonical absolute link of the node.
	URL       string `json:"url" yaml:"url"`
	EventType *Term  `json:"event_type,omitempty" yaml:"event_type,omitempty"`

	// PublishOn is the scheduled publication time, zero when unscheduled.
	PublishOn time.Time `json:"publish_on,omitempty" yaml:"publish_on,omitempty"`
}

// Account is an authenticated identity (user entity).
type Account struct {
	UUID        string    `json:"uuid" yaml:"uuid"`
	Created     time.Time `json:"created" yaml:"created"`
	Changed     time.Time `json:"changed" yaml:"changed"`
	Active      bool      `json:"active" yaml:"active"`
	DisplayName string    `json:"display_name" yaml:"display_name"`
	Email       string    `json:"email" yaml:"email"`
	Timezone    string    `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Language    string    `json:"language,omitempty" yaml:"language,omitempty"`
	Roles       []string  `json:"roles,omitempty" yaml:"roles,omitempty"`
	URL         string    `json:"url" yaml:"url"`
}

// Group is the owning group of a node.
type Group struct {
	UUID  string `json:"uuid" yaml:"uuid"`
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url" yaml:"url"`
}

// Term is a taxonomy term reference.
type Term struct {
	UUID  string `json:"uuid" yaml:"uuid"`
	Label string `json:"label" yaml:"label"`
}

// PostalAddress is the stored address field item.
type PostalAddress struct {
	CountryCode        string `json:"country_code" yaml:"country_code"`
	AdministrativeArea string `json:"administrative_area,omitempty" yaml:"administrative_area,omitempty"`
	Locality           string `json:"locality,omitempty" yaml:"locality,omitempty"`
	DependentLocality  string `json:"dependent_locality,omitempty" yaml:"dependent_locality,omitempty"`
	PostalCode         string `json:"postal_code,omitempty" yaml:"postal_code,omitempty"`
	SortingCode        string `json:"sorting_code,omitempty" yaml:"sorting_code,omitempty"`
	AddressLine1       string `json:"address_line1,omitempty" yaml:"address_line1,omitempty"`
	AddressLine2       string `json:"address_line2,omitempty" yaml:"address_line2,omitempty"`
}
