package xeda

import (
	"fmt"
	"net/url"
	"time"
)

// EnrollmentMethods is indexed by the stored enrollment method code.
var EnrollmentMethods = []string{"open", "request", "invite"}

// User is the normalized snapshot of an account.
type User struct {
	ID          string   `json:"id"`
	Created     string   `json:"created"`
	Updated     string   `json:"updated"`
	Status      string   `json:"status"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Timezone    string   `json:"timezone"`
	Language    string   `json:"language"`
	Roles       []string `json:"roles"`
	Href        Href     `json:"href"`
}

// Entity is a minimal reference to another entity.
type Entity struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Href  Href   `json:"href"`
}

// Application identifies an automated caller.
type Application struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Address is the normalized postal address of an event.
type Address struct {
	Label              string `json:"label"`
	CountryCode        string `json:"countryCode"`
	AdministrativeArea string `json:"administrativeArea"`
	Locality           string `json:"locality"`
	DependentLocality  string `json:"dependentLocality"`
	PostalCode         string `json:"postalCode"`
	SortingCode        string `json:"sortingCode"`
	AddressLine1       string `json:"addressLine1"`
	AddressLine2       string `json:"addressLine2"`
}

// Href holds the links of an entity.
type Href struct {
	Canonical string `json:"canonical"`
}

// ContentVisibility classifies who can see a node.
type ContentVisibility struct {
	Type   string   `json:"type"`
	Groups []string `json:"groups"`
	Roles  []string `json:"roles"`
}

// Enrollment describes how members join an event.
type Enrollment struct {
	Enabled bool   `json:"enabled"`
	Method  string `json:"method"`
}

var applicationLabels = map[string]string{
	ApplicationCron: "Cron",
}

// FormatDateTime renders t as ISO-8601 with an explicit offset in loc.
// The zero time renders as an empty string.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.RFC3339)
}

// HrefFromURL validates an absolute canonical link.
func HrefFromURL(raw string) (Href, error) {
	if raw == "" {
		return Href{}, fmt.Errorf("%w: missing canonical url", ErrMalformedEntity)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Href{}, fmt.Errorf("%w: canonical url: %v", ErrMalformedEntity, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return Href{}, fmt.Errorf("%w: canonical url %q is not absolute", ErrMalformedEntity, raw)
	}
	return Href{Canonical: u.String()}, nil
}

// UserFromAccount normalizes an account. A nil account yields nil.
func UserFromAccount(a *Account, loc *time.Location) (*User, error) {
	if a == nil {
		return nil, nil
	}
	if a.UUID == "" {
		return nil, fmt.Errorf("%w: account without uuid", ErrMalformedEntity)
	}
	href, err := HrefFromURL(a.URL)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", a.UUID, err)
	}
	status := "blocked"
	if a.Active {
		status = "active"
	}
	roles := a.Roles
	if roles == nil {
		roles = []string{}
	}
	return &User{
		ID:          a.UUID,
		Created:     FormatDateTime(a.Created, loc),
		Updated:     FormatDateTime(a.Changed, loc),
		Status:      status,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		Timezone:    a.Timezone,
		Language:    a.Language,
		Roles:       roles,
		Href:        href,
	}, nil
}

// EntityFromGroup normalizes a group reference. A nil group yields nil.
func EntityFromGroup(g *Group) (*Entity, error) {
	if g == nil {
		return nil, nil
	}
	href, err := HrefFromURL(g.URL)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", g.UUID, err)
	}
	return &Entity{ID: g.UUID, Label: g.Label, Href: href}, nil
}

// ApplicationFromID returns the application snapshot for a token.
func ApplicationFromID(id string) *Application {
	if id == "" {
		return nil
	}
	label, ok := applicationLabels[id]
	if !ok {
		label = id
	}
	return &Application{ID: id, Label: label}
}

// AddressFromField normalizes an address item; label comes from the
// location field. A nil item yields nil.
func AddressFromField(item *PostalAddress, label string) (*Address, error) {
	if item == nil {
		return nil, nil
	}
	if item.CountryCode == "" {
		return nil, fmt.Errorf("%w: address without country code", ErrMalformedEntity)
	}
	return &Address{
		Label:              label,
		CountryCode:        item.CountryCode,
		AdministrativeArea: item.AdministrativeArea,
		Locality:           item.Locality,
		DependentLocality:  item.DependentLocality,
		PostalCode:         item.PostalCode,
		SortingCode:        item.SortingCode,
		AddressLine1:       item.AddressLine1,
		AddressLine2:       item.AddressLine2,
	}, nil
}

// VisibilityFromNode classifies node visibility. Group visibility lists the
// owning group.
func VisibilityFromNode(n *Node) ContentVisibility {
	v := ContentVisibility{Type: n.Visibility, Groups: []string{}, Roles: []string{}}
	if v.Type == "" {
		v.Type = "public"
	}
	switch v.Type {
	case "group":
		if n.Group != nil {
			v.Groups = []string{n.Group.UUID}
		}
	case "role":
		if n.VisibilityRoles != nil {
			v.Roles = n.VisibilityRoles
		}
	}
	return v
}

// EnrollmentMethod maps a stored method code to its name.
func EnrollmentMethod(code int) (string, error) {
	if code < 0 || code >= len(EnrollmentMethods) {
		return "", fmt.Errorf("%w: code %d", ErrEnrollmentMethod, code)
	}
	return EnrollmentMethods[code], nil
}
