package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionValueRoundTrip(t *testing.T) {
	auth := newAuthService(nil, []byte("secret"), false)

	email, ok := auth.verifySessionValue(auth.createSessionValue("admin@usashopbox.com"))
	require.True(t, ok)
	assert.Equal(t, "admin@usashopbox.com", email)
}

func TestSessionValueRejectsTampering(t *testing.T) {
	auth := newAuthService(nil, []byte("secret"), false)
	value := auth.createSessionValue("admin@usashopbox.com")

	other := newAuthService(nil, []byte("other"), false)
	_, ok := other.verifySessionValue(value)
	assert.False(t, ok, "wrong secret")

	payload, signature, _ := strings.Cut(value, ".")
	_, ok = auth.verifySessionValue(payload + "x." + signature)
	assert.False(t, ok, "modified payload")

	for _, bad := range []string{"", "novalue", "a.b.c", "abc.zz"} {
		_, ok := auth.verifySessionValue(bad)
		assert.False(t, ok, bad)
	}
}

func TestSessionValueExpires(t *testing.T) {
	auth := newAuthService(nil, []byte("secret"), false)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return start }
	value := auth.createSessionValue("admin@usashopbox.com")

	auth.now = func() time.Time { return start.Add(sessionTTL - time.Minute) }
	_, ok := auth.verifySessionValue(value)
	assert.True(t, ok)

	auth.now = func() time.Time { return start.Add(sessionTTL) }
	_, ok = auth.verifySessionValue(value)
	assert.False(t, ok)
}

func TestSessionCookieAttributes(t *testing.T) {
	auth := newAuthService(nil, []byte("secret"), true)
	rr := httptest.NewRecorder()

	auth.setSessionCookie(rr, "admin@usashopbox.com")

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	email, ok := auth.sessionEmail(req)
	require.True(t, ok)
	assert.Equal(t, "admin@usashopbox.com", email)
}
