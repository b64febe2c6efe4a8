package model

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		label string
		tier  Tier
		ok    bool
	}{
		{"2.0 Pro", TierPro, true},
		{"Gemini 1.5 Pro", TierPro, true},
		{"Pro", TierPro, true},
		{"2.0 Flash", TierFast, true},
		{"Szybki", TierFast, true},
		{"Fast", TierFast, true},
		{"  1.5   Pro  ", TierPro, true},
		{"", "", false},
		{"Something else", "", false},
	}
	for _, tc := range cases {
		tier, ok := Classify(tc.label)
		assert.Equal(t, tc.ok, ok, tc.label)
		assert.Equal(t, tc.tier, tier, tc.label)
	}
}

func TestIsProMenuItem(t *testing.T) {
	assert.True(t, IsProMenuItem("Pro"))
	assert.True(t, IsProMenuItem("Gemini 2.0 Pro"))
	assert.True(t, IsProMenuItem("1.5 Pro"))
	assert.False(t, IsProMenuItem("Proszę czekać"))
	assert.False(t, IsProMenuItem("Upgrade to Pro"))
}

func TestResetHint(t *testing.T) {
	hint, ok := ResetHint("Pro\nLimit resetuje się o 14:00")
	require.True(t, ok)
	assert.Equal(t, "Limit resetuje się o 14:00", hint)

	hint, ok = ResetHint("Pro\nYour quota resets at 2 PM")
	require.True(t, ok)
	assert.Equal(t, "Your quota resets at 2 PM", hint)

	_, ok = ResetHint("Pro")
	assert.False(t, ok)
}

// scriptedSurface plays back a sequence of labels, one per DetectLabel call,
// and records which gestures the controller performed.
type scriptedSurface struct {
	labels     []string
	labelIdx   int
	directHits bool

	menuOpens    int
	proClicks    int
	fastClicks   int
	dismissed    int
	keyboardUsed int

	proDisabled     bool
	proDisabledText string
	proClickLands   bool
	fastClickLands  bool
}

func (s *scriptedSurface) DetectLabel() (string, error) {
	if s.labelIdx >= len(s.labels) {
		return s.labels[len(s.labels)-1], nil
	}
	label := s.labels[s.labelIdx]
	s.labelIdx++
	return label, nil
}

func (s *scriptedSurface) DirectProClick() (bool, error) { return s.directHits, nil }

func (s *scriptedSurface) DismissOverlays() error {
	s.dismissed++
	return nil
}

func (s *scriptedSurface) OpenMenu() (bool, error) {
	s.menuOpens++
	return true, nil
}

func (s *scriptedSurface) CloseMenu() error { return nil }

func (s *scriptedSurface) DisabledProText() (string, bool, error) {
	return s.proDisabledText, s.proDisabled, nil
}

func (s *scriptedSurface) ClickProItem() (bool, error) {
	s.proClicks++
	return s.proClickLands, nil
}

func (s *scriptedSurface) ProCheckedInMenu() (bool, error) { return s.proClickLands, nil }

func (s *scriptedSurface) KeyboardSelectLast() error {
	s.keyboardUsed++
	return nil
}

func (s *scriptedSurface) ClickFastItem() (bool, error) {
	s.fastClicks++
	return s.fastClickLands, nil
}

func newTestController(s Surface, retries int) *Controller {
	c := NewController(s, retries, 1200*time.Millisecond, log.Logger{Writer: &log.IOWriter{Writer: io.Discard}})
	c.sleep = func(time.Duration) {}
	return c
}

func TestEnsureProAlreadySelected(t *testing.T) {
	s := &scriptedSurface{labels: []string{"2.0 Pro"}}
	c := newTestController(s, 3)
	require.NoError(t, c.EnsurePro(context.Background()))
	assert.Zero(t, s.menuOpens)
	assert.Zero(t, s.proClicks)
}

// The UI reverts to Flash; the first menu pass races an animation and the
// label stays Flash, the second pass lands. The controller must converge
// without exhausting its budget.
func TestEnsureProConvergesAfterRetry(t *testing.T) {
	s := &scriptedSurface{
		// initial check, post-direct-click check is skipped (direct miss),
		// then one check per attempt.
		labels:        []string{"2.0 Flash", "2.0 Flash", "2.0 Pro"},
		proClickLands: true,
	}
	c := newTestController(s, 3)
	require.NoError(t, c.EnsurePro(context.Background()))
	assert.Equal(t, 2, s.menuOpens)
	assert.Equal(t, 2, s.proClicks)
	assert.Equal(t, 2, s.dismissed)
}

func TestEnsureProDirectClickShortcut(t *testing.T) {
	s := &scriptedSurface{
		labels:     []string{"2.0 Flash", "2.0 Pro"},
		directHits: true,
	}
	c := newTestController(s, 3)
	require.NoError(t, c.EnsurePro(context.Background()))
	assert.Zero(t, s.menuOpens)
}

func TestEnsureProDisabledReturnsResetHint(t *testing.T) {
	s := &scriptedSurface{
		labels:          []string{"2.0 Flash"},
		proDisabled:     true,
		proDisabledText: "Pro\nLimit resets at 14:00",
	}
	c := newTestController(s, 3)
	err := c.EnsurePro(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProUnavailable)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "Limit resets at 14:00", unavailable.ResetHint)

	// Quota exhaustion is terminal; no point burning the retry budget.
	assert.Equal(t, 1, s.menuOpens)
}

func TestEnsureProBudgetExhausted(t *testing.T) {
	s := &scriptedSurface{
		labels:        []string{"2.0 Flash", "2.0 Flash", "2.0 Flash", "2.0 Flash"},
		proClickLands: true,
	}
	c := newTestController(s, 3)
	err := c.EnsurePro(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProUnavailable)
	assert.Equal(t, 3, s.menuOpens)
}

func TestEnsureProKeyboardFallback(t *testing.T) {
	s := &scriptedSurface{
		labels:        []string{"2.0 Flash", "2.0 Flash", "2.0 Pro"},
		proClickLands: false,
	}
	c := newTestController(s, 3)
	require.NoError(t, c.EnsurePro(context.Background()))
	assert.GreaterOrEqual(t, s.keyboardUsed, 1)
}

func TestEnsureProContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &scriptedSurface{labels: []string{"2.0 Flash"}}
	c := newTestController(s, 3)
	err := c.EnsurePro(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnsureFast(t *testing.T) {
	s := &scriptedSurface{
		labels:         []string{"2.0 Pro", "2.0 Flash"},
		fastClickLands: true,
	}
	c := newTestController(s, 3)
	require.NoError(t, c.EnsureFast(context.Background()))
	assert.Equal(t, 1, s.fastClicks)
}

func TestEnsureFastAlreadySelected(t *testing.T) {
	s := &scriptedSurface{labels: []string{"Szybki"}}
	c := newTestController(s, 3)
	require.NoError(t, c.EnsureFast(context.Background()))
	assert.Zero(t, s.menuOpens)
}
