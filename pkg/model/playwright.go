package model

import (
	"regexp"

	"github.com/playwright-community/playwright-go"
)

// Selector candidates for the model selector button, most specific first.
// The UI renames test ids across releases, so each is tried in turn.
var modeButtonSelectors = []string{
	"[data-test-id='bard-mode-menu-button'] button",
	"[data-test-id='bard-mode-menu-button']",
	"button.input-area-switch",
	"div[role='group'][aria-label*='selektor trybu' i] button",
	"div[role='group'][aria-label*='mode selector' i] button",
	"button[aria-label*='model' i]",
	"button[aria-label*='modelu' i]",
	"[data-testid*='model' i]",
}

// Overlay dismiss buttons, clicked when visible before touching the menu.
var overlaySelectors = []string{
	"button[data-test-id='close-button']",
	"button[aria-label='Close']",
	"button[aria-label='Zamknij']",
	"button:has-text('Nie teraz')",
	"button:has-text('No thanks')",
	"button:has-text('Got it')",
	"button:has-text('OK')",
}

var menuItemSelectors = []string{
	"[role='menuitemradio']",
	"button.mat-mdc-menu-item",
	"[role='menuitem']",
}

// PageSurface implements Surface against a live Playwright page.
type PageSurface struct {
	page playwright.Page
}

// NewPageSurface wraps a page for model control.
func NewPageSurface(page playwright.Page) *PageSurface {
	return &PageSurface{page: page}
}

func (s *PageSurface) modeButton() (playwright.Locator, bool) {
	for _, sel := range modeButtonSelectors {
		loc := s.page.Locator(sel).First()
		if visible, err := loc.IsVisible(); err == nil && visible {
			return loc, true
		}
	}
	return nil, false
}

func (s *PageSurface) DetectLabel() (string, error) {
	btn, ok := s.modeButton()
	if !ok {
		return "", nil
	}
	return btn.InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(2000),
	})
}

func (s *PageSurface) DirectProClick() (bool, error) {
	chip := s.page.GetByText(proMenuItemRe).First()
	visible, err := chip.IsVisible()
	if err != nil || !visible {
		return false, err
	}
	err = chip.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(3000),
	})
	return err == nil, err
}

func (s *PageSurface) DismissOverlays() error {
	for _, sel := range overlaySelectors {
		loc := s.page.Locator(sel).First()
		if visible, err := loc.IsVisible(); err == nil && visible {
			_ = loc.Click(playwright.LocatorClickOptions{
				Timeout: playwright.Float(1500),
			})
		}
	}
	// Upsell dialogs have no close button; Escape clears them.
	if visible, err := s.page.GetByText("Get access").First().IsVisible(); err == nil && visible {
		_ = s.page.Keyboard().Press("Escape")
	}
	return nil
}

func (s *PageSurface) OpenMenu() (bool, error) {
	btn, ok := s.modeButton()
	if !ok {
		return false, nil
	}
	if err := btn.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(3000),
	}); err != nil {
		return false, err
	}
	menu := s.page.Locator("[role='menu'], .mat-mdc-menu-panel").First()
	err := menu.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(3000),
	})
	return err == nil, nil
}

func (s *PageSurface) CloseMenu() error {
	return s.page.Keyboard().Press("Escape")
}

func (s *PageSurface) proItem() (playwright.Locator, bool) {
	for _, sel := range menuItemSelectors {
		items := s.page.Locator(sel).Filter(playwright.LocatorFilterOptions{
			HasText: proMenuItemRe,
		})
		if count, err := items.Count(); err == nil && count > 0 {
			return items.First(), true
		}
	}
	return nil, false
}

func (s *PageSurface) DisabledProText() (string, bool, error) {
	item, ok := s.proItem()
	if !ok {
		return "", false, nil
	}
	text, err := item.InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(2000),
	})
	if err != nil {
		return "", false, err
	}
	if v, err := item.GetAttribute("aria-disabled"); err == nil && v == "true" {
		return text, true, nil
	}
	if v, err := item.GetAttribute("disabled"); err == nil && v != "" {
		return text, true, nil
	}
	if class, err := item.GetAttribute("class"); err == nil {
		if disabledClassRe.MatchString(class) {
			return text, true, nil
		}
	}
	return text, false, nil
}

var disabledClassRe = regexp.MustCompile(`\b(disabled|inactive)\b`)

func (s *PageSurface) ClickProItem() (bool, error) {
	item, ok := s.proItem()
	if !ok {
		return false, nil
	}
	if err := item.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(3000),
	}); err == nil {
		return true, nil
	}
	// Material ripple overlays can swallow the pointer event; a synthetic
	// click bypasses hit testing.
	if _, err := item.Evaluate("el => el.click()", nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PageSurface) ProCheckedInMenu() (bool, error) {
	item, ok := s.proItem()
	if !ok {
		return false, nil
	}
	v, err := item.GetAttribute("aria-checked")
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (s *PageSurface) KeyboardSelectLast() error {
	if err := s.page.Keyboard().Press("End"); err != nil {
		return err
	}
	return s.page.Keyboard().Press("Enter")
}

func (s *PageSurface) ClickFastItem() (bool, error) {
	for _, sel := range menuItemSelectors {
		items := s.page.Locator(sel).Filter(playwright.LocatorFilterOptions{
			HasText: fastLabelRe,
		})
		count, err := items.Count()
		if err != nil || count == 0 {
			continue
		}
		err = items.First().Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(3000),
		})
		return err == nil, err
	}
	return false, nil
}
