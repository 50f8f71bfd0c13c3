package xeda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentMethod(t *testing.T) {
	for code, want := range map[int]string{0: "open", 1: "request", 2: "invite"} {
		got, err := EnrollmentMethod(code)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, code := range []int{-1, 3, 42} {
		_, err := EnrollmentMethod(code)
		assert.ErrorIs(t, err, ErrEnrollmentMethod)
	}
}

func TestFormatDateTime(t *testing.T) {
	ams := time.FixedZone("Europe/Amsterdam", 3600)

	ts := time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-10T09:30:00Z", FormatDateTime(ts, nil))
	assert.Equal(t, "2025-01-10T10:30:00+01:00", FormatDateTime(ts, ams))
	assert.Empty(t, FormatDateTime(time.Time{}, ams))
}

func TestHrefFromURL(t *testing.T) {
	h, err := HrefFromURL("https://intranet.example.com/node/42")
	require.NoError(t, err)
	assert.Equal(t, "https://intranet.example.com/node/42", h.Canonical)

	for _, raw := range []string{"", "/node/42", "node/42", "https://"} {
		_, err := HrefFromURL(raw)
		assert.ErrorIs(t, err, ErrMalformedEntity, raw)
	}
}

func TestUserFromAccount(t *testing.T) {
	u, err := UserFromAccount(nil, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, u)

	acc := alice()
	acc.Active = false
	acc.Roles = nil
	u, err = UserFromAccount(acc, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "blocked", u.Status)
	assert.Equal(t, []string{}, u.Roles)
	assert.Equal(t, "2024-05-01T08:00:00Z", u.Created)

	acc.URL = ""
	_, err = UserFromAccount(acc, time.UTC)
	assert.ErrorIs(t, err, ErrMalformedEntity)
}

func TestAddressFromField(t *testing.T) {
	a, err := AddressFromField(nil, "hall")
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = AddressFromField(&PostalAddress{Locality: "Amsterdam"}, "hall")
	assert.ErrorIs(t, err, ErrMalformedEntity)

	a, err = AddressFromField(&PostalAddress{CountryCode: "NL", Locality: "Amsterdam"}, "hall")
	require.NoError(t, err)
	assert.Equal(t, "hall", a.Label)
	assert.Equal(t, "NL", a.CountryCode)
}

func TestVisibilityFromNode(t *testing.T) {
	n := eventNode()
	assert.Equal(t, ContentVisibility{Type: "group", Groups: []string{n.Group.UUID}, Roles: []string{}}, VisibilityFromNode(n))

	n.Visibility = ""
	assert.Equal(t, "public", VisibilityFromNode(n).Type)

	n.Visibility = "role"
	n.VisibilityRoles = []string{"verified"}
	assert.Equal(t, []string{"verified"}, VisibilityFromNode(n).Roles)
}

func TestApplicationFromID(t *testing.T) {
	assert.Nil(t, ApplicationFromID(""))
	assert.Equal(t, &Application{ID: "cron", Label: "Cron"}, ApplicationFromID(ApplicationCron))
	assert.Equal(t, &Application{ID: "drush", Label: "drush"}, ApplicationFromID("drush"))
}
