package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortForStable(t *testing.T) {
	a := PortFor(9222, 100, "profile_alpha")
	b := PortFor(9222, 100, "profile_alpha")
	assert.Equal(t, a, b)
}

func TestPortForWithinSpan(t *testing.T) {
	for _, profile := range []string{"", "a", "default", "worker_07", "bardzo_długi_profil"} {
		port := PortFor(9222, 100, profile)
		assert.GreaterOrEqual(t, port, 9222, profile)
		assert.Less(t, port, 9322, profile)
	}
}

func TestPortForDistinguishesProfiles(t *testing.T) {
	// Not guaranteed in general, but these two must not collide: they are
	// the standard pair run side by side in production.
	a := PortFor(9222, 100, "profile_a")
	b := PortFor(9222, 100, "profile_b")
	assert.NotEqual(t, a, b)
}

func TestPortForDegenerateSpan(t *testing.T) {
	assert.Equal(t, 9222, PortFor(9222, 0, "anything"))
	assert.Equal(t, 9222, PortFor(9222, -5, "anything"))
	assert.Equal(t, 9222, PortFor(9222, 1, "anything"))
}

func TestPortForLocalAndRemoteBasesAlign(t *testing.T) {
	// The same profile hashed against different bases keeps the same offset,
	// so the tunnel's local and remote ends stay paired.
	remote := PortFor(9222, 100, "profile_alpha")
	local := PortFor(10222, 100, "profile_alpha")
	assert.Equal(t, remote-9222, local-10222)
}
