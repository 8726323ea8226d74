package identity

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_WithMethods(t *testing.T) {
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := issued.Add(24 * time.Hour)
	ip := net.ParseIP("192.168.1.100")

	id := New(7, "alice", true).
		WithTimes(issued, expires).
		WithRemoteIP(ip)

	assert.Equal(t, uint(7), id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.True(t, id.IsSuperuser)
	assert.Equal(t, issued, id.IssuedAt)
	assert.Equal(t, expires, id.ExpiresAt)
	assert.Equal(t, ip, id.RemoteIP)
	assert.Equal(t, "192.168.1.100", id.ClientIP())
}

func TestIdentity_ClientIPUnknown(t *testing.T) {
	assert.Empty(t, New(1, "bob", false).ClientIP())
}

func TestRemoteIPFromRequest(t *testing.T) {
	tests := []struct {
		name         string
		remoteAddr   string
		forwardedFor string
		expected     string
	}{
		{
			name:       "host and port",
			remoteAddr: "10.0.0.1:51234",
			expected:   "10.0.0.1",
		},
		{
			name:       "bare host",
			remoteAddr: "10.0.0.2",
			expected:   "10.0.0.2",
		},
		{
			name:         "forwarded for wins",
			remoteAddr:   "10.0.0.1:51234",
			forwardedFor: "203.0.113.9, 10.0.0.254",
			expected:     "203.0.113.9",
		},
		{
			name:         "malformed forwarded for",
			remoteAddr:   "10.0.0.1:51234",
			forwardedFor: "unknown",
			expected:     "10.0.0.1",
		},
		{
			name:       "ipv6",
			remoteAddr: "[::1]:8080",
			expected:   "::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := RemoteIPFromRequest(tt.remoteAddr, tt.forwardedFor)
			require.NotNil(t, ip)
			assert.Equal(t, tt.expected, ip.String())
		})
	}
}

func TestContextGetSet(t *testing.T) {
	ctx := context.Background()

	// Initially no identity
	id, ok := Get(ctx)
	assert.False(t, ok)
	assert.Nil(t, id)

	expected := New(3, "alice", false)
	ctx = Set(ctx, expected)

	id, ok = Get(ctx)
	assert.True(t, ok)
	require.NotNil(t, id)
	assert.Equal(t, expected.UserID, id.UserID)
	assert.Equal(t, expected.Username, id.Username)
}
