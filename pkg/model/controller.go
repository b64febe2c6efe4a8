package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
)

// ErrProUnavailable reports that the Pro tier is greyed out in the menu,
// usually because the daily quota is exhausted.
var ErrProUnavailable = errors.New("pro model unavailable")

// UnavailableError wraps ErrProUnavailable with the reset hint scraped from
// the disabled menu item, when one was visible.
type UnavailableError struct {
	ResetHint string
}

func (e *UnavailableError) Error() string {
	if e.ResetHint != "" {
		return fmt.Sprintf("pro model unavailable: %s", e.ResetHint)
	}
	return "pro model unavailable"
}

func (e *UnavailableError) Unwrap() error { return ErrProUnavailable }

// Surface is the set of UI gestures the controller needs. The playwright
// adapter implements it against a live page; tests script it.
type Surface interface {
	// DetectLabel scrapes the currently displayed model label, or "" when
	// the selector button is not visible.
	DetectLabel() (string, error)

	// DirectProClick attempts the shortcut of clicking a visible Pro chip
	// without opening the menu. It reports whether the click landed.
	DirectProClick() (bool, error)

	// DismissOverlays closes consent popups and upsell dialogs that would
	// otherwise intercept menu clicks.
	DismissOverlays() error

	// OpenMenu opens the model selector menu.
	OpenMenu() (bool, error)

	// CloseMenu closes the menu without selecting, best-effort.
	CloseMenu() error

	// DisabledProText returns the Pro menu item's text and whether the item
	// is disabled. Only meaningful while the menu is open.
	DisabledProText() (text string, disabled bool, err error)

	// ClickProItem clicks the Pro entry in the open menu, trying locator
	// strategies from most to least specific. Reports whether any landed.
	ClickProItem() (bool, error)

	// ProCheckedInMenu reports whether the Pro entry carries the selected
	// state while the menu is open.
	ProCheckedInMenu() (bool, error)

	// KeyboardSelectLast walks the open menu to its last entry and commits
	// it. The Pro tier sorts last in every known menu layout.
	KeyboardSelectLast() error

	// ClickFastItem clicks the fast-tier entry in the open menu.
	ClickFastItem() (bool, error)
}

// Controller converges the UI onto a desired model tier.
type Controller struct {
	surface  Surface
	retries  int
	cooldown time.Duration
	logger   log.Logger

	// sleep is swappable in tests to avoid real cooldown waits.
	sleep func(time.Duration)
}

// NewController builds a controller with the given retry budget and cooldown
// between attempts.
func NewController(surface Surface, retries int, cooldown time.Duration, logger log.Logger) *Controller {
	if retries < 1 {
		retries = 1
	}
	return &Controller{
		surface:  surface,
		retries:  retries,
		cooldown: cooldown,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// Current returns the tier currently shown in the UI, if recognizable.
func (c *Controller) Current() (Tier, bool) {
	label, err := c.surface.DetectLabel()
	if err != nil {
		return "", false
	}
	return Classify(label)
}

// EnsurePro drives the UI to the Pro tier. It first tries a direct click on
// a visible Pro chip, then falls back to a bounded menu loop: dismiss
// overlays, open the menu, bail out with the reset hint when Pro is greyed
// out, click the Pro entry, and confirm via the checked state and the
// displayed label. Between attempts it waits the configured cooldown.
func (c *Controller) EnsurePro(ctx context.Context) error {
	if tier, ok := c.Current(); ok && tier == TierPro {
		return nil
	}

	if ok, err := c.surface.DirectProClick(); err == nil && ok {
		if tier, ok := c.Current(); ok && tier == TierPro {
			c.logger.Debug().Msg("pro model selected via direct click")
			return nil
		}
	}

	for attempt := 1; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.ensureProOnce(attempt); err != nil {
			if errors.Is(err, ErrProUnavailable) {
				return err
			}
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("model switch attempt failed")
		} else if tier, ok := c.Current(); ok && tier == TierPro {
			c.logger.Info().Int("attempt", attempt).Msg("pro model confirmed")
			return nil
		}
		if attempt < c.retries {
			c.sleep(c.cooldown)
		}
	}
	return fmt.Errorf("model did not converge to pro after %d attempts", c.retries)
}

func (c *Controller) ensureProOnce(attempt int) error {
	if err := c.surface.DismissOverlays(); err != nil {
		c.logger.Debug().Err(err).Msg("overlay dismissal failed")
	}

	opened, err := c.surface.OpenMenu()
	if err != nil {
		return fmt.Errorf("open model menu: %w", err)
	}
	if !opened {
		return errors.New("model menu did not open")
	}
	defer func() { _ = c.surface.CloseMenu() }()

	text, disabled, err := c.surface.DisabledProText()
	if err == nil && disabled {
		hint, _ := ResetHint(text)
		c.logger.Warn().Str("reset_hint", hint).Msg("pro model disabled in menu")
		return &UnavailableError{ResetHint: hint}
	}

	clicked, err := c.surface.ClickProItem()
	if err != nil {
		return fmt.Errorf("click pro item: %w", err)
	}
	if clicked {
		if checked, err := c.surface.ProCheckedInMenu(); err == nil && checked {
			return nil
		}
		return nil
	}

	// No clickable Pro entry found; the keyboard walk commits the last menu
	// entry, which is Pro in every known layout.
	c.logger.Debug().Int("attempt", attempt).Msg("falling back to keyboard menu selection")
	return c.surface.KeyboardSelectLast()
}

// EnsureFast drives the UI to the fast tier, used to park a session once the
// Pro quota is spent. Failures are tolerable here, so the loop is shorter and
// never returns ErrProUnavailable.
func (c *Controller) EnsureFast(ctx context.Context) error {
	if tier, ok := c.Current(); ok && tier == TierFast {
		return nil
	}
	for attempt := 1; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.surface.DismissOverlays(); err != nil {
			c.logger.Debug().Err(err).Msg("overlay dismissal failed")
		}
		opened, err := c.surface.OpenMenu()
		if err == nil && opened {
			clicked, err := c.surface.ClickFastItem()
			_ = c.surface.CloseMenu()
			if err == nil && clicked {
				if tier, ok := c.Current(); ok && tier == TierFast {
					return nil
				}
			}
		}
		if attempt < c.retries {
			c.sleep(c.cooldown)
		}
	}
	return fmt.Errorf("model did not converge to fast after %d attempts", c.retries)
}
