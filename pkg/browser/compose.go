package browser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/tomaasz/ocr-dashboard-v2/pkg/health"
)

const composerSelector = "div[contenteditable='true']"

// popupSelectors covers consent screens, upsell dialogs, welcome overlays,
// and permission prompts, in both UI languages. Scanned on every sweep.
var popupSelectors = []string{
	"button[aria-label*='Close']",
	"button[aria-label*='Zamknij']",
	"button:has-text('No thanks')",
	"button:has-text('Got it')",
	"button:has-text('Rozumiem')",
	"button:has-text('Zgadzam się')",
	"button:has-text('Zamknij')",
	"button:has-text('Use Gemini')",
	"button:has-text('Accept all')",
	"button:has-text('Zaakceptuj wszystko')",
	"button:has-text('Kontynuuj')",
	"button:has-text('Continue')",
	"button:has-text('Nie teraz')",
	"button:has-text('Not now')",
	"button:has-text('Maybe later')",
	"button:has-text('Later')",
	"button:has-text('Skip')",
	"button:has-text('Pomiń')",
	"[aria-label*='dismiss']",
	"[aria-label*='Dismiss']",
	"button:has-text('Otwórz Gemini')",
	"button:has-text('Get started')",
	"button:has-text('Start')",
	"button:has-text('Open Gemini')",
	"button:has-text('Try Gemini')",
	"button:has-text('Wypróbuj Gemini')",
	"button:has-text('Block')",
	"button:has-text('Zablokuj')",
	"button[jsname='V67aGc']",
	"button[jsname='b3VHJd']",
}

var sendSelectors = []string{
	"button[aria-label*='Wyślij wiadomość' i]",
	"button[aria-label*='Wyślij' i]",
	"button[aria-label*='Send message' i]",
	"button[aria-label*='Send' i]",
	"button[type='submit']",
	"button[data-testid*='send' i]",
	"button:has(svg[aria-label*='Send' i])",
	"button:has(svg[aria-label*='Wyślij' i])",
}

var cardIDRe = regexp.MustCompile(`/app/([^/?#]+)`)

// ClosePopups clicks through every visible popup dismiss button. One failing
// selector never stops the sweep.
func (m *Manager) ClosePopups(page playwright.Page) {
	if strings.Contains(page.URL(), "consent.google.com") {
		// Consent pages hide their buttons below the fold.
		if _, err := page.Evaluate("window.scrollTo(0, document.body.scrollHeight)"); err == nil {
			page.WaitForTimeout(300)
		}
	}

	for _, sel := range popupSelectors {
		btn := page.Locator(sel).First()
		count, err := btn.Count()
		if err != nil || count == 0 {
			continue
		}
		visible, err := btn.IsVisible()
		if err != nil || !visible {
			continue
		}
		m.logger.Info().Str("selector", sel).Msg("closing popup")
		if err := btn.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(1000)}); err != nil {
			continue
		}
		page.WaitForTimeout(300)
	}
}

// WaitForUIReady waits for the composer to render, reloading once if it does
// not. A second miss escalates: a detected login wall becomes
// ErrSessionExpired, anything else is reported as a possible UI change.
func (m *Manager) WaitForUIReady(page playwright.Page) error {
	composer := page.Locator(composerSelector).First()
	err := composer.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(40000),
	})
	if err == nil {
		return nil
	}

	m.logger.Warn().Err(err).Msg("ui not ready, reloading")
	if page.IsClosed() {
		return fmt.Errorf("page closed before reload")
	}
	if _, err := page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	time.Sleep(5 * time.Second)

	err = composer.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(60000),
	})
	if err == nil {
		m.logger.Info().Msg("ui recovered after reload")
		return nil
	}

	if sessionErr := m.checkSession(page); sessionErr != nil {
		return sessionErr
	}

	m.events.LogCriticalEvent(m.cfg.ProfileName, "ui_change_detected",
		"UI layout may have changed. Check logs and update selectors.", true,
		map[string]any{"context": "after_reload_failure", "url": page.URL()})
	return fmt.Errorf("ui never became ready: %w", err)
}

// checkSession classifies the page and returns ErrSessionExpired for any
// critical issue, logging the incident either way.
func (m *Manager) checkSession(page playwright.Page) error {
	probe := health.NewPageProbe(page)
	issue, found := health.Detect(probe)
	if !found {
		return nil
	}
	report := health.Diagnose(probe, issue)
	m.logger.Warn().Str("issue", string(issue)).Str("url", report.URL).Msg("session issue detected")
	m.events.LogCriticalEvent(m.cfg.ProfileName, string(issue), report.Suggestion, report.Critical, report.Meta())
	if report.Critical {
		return fmt.Errorf("%w: %s", ErrSessionExpired, issue)
	}
	return nil
}

// EnsureSession validates the page is logged in and usable, attempting one
// reload as light recovery. Returns ErrSessionExpired when the session is
// gone.
func (m *Manager) EnsureSession(page playwright.Page) error {
	m.ClosePopups(page)
	if err := m.checkSession(page); err != nil {
		return err
	}
	composer := page.Locator(composerSelector).First()
	if visible, err := composer.IsVisible(); err == nil && visible {
		return nil
	}

	if _, err := page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err == nil {
		time.Sleep(time.Second)
		m.ClosePopups(page)
	}
	if err := m.checkSession(page); err != nil {
		return err
	}
	return m.WaitForUIReady(page)
}

// WaitForComposerReady waits for the composer and focuses it.
func (m *Manager) WaitForComposerReady(page playwright.Page) error {
	box := page.Locator(composerSelector).First()
	if err := box.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(40000),
	}); err != nil {
		return fmt.Errorf("composer not visible: %w", err)
	}
	_ = box.Click(playwright.LocatorClickOptions{
		Force:   playwright.Bool(true),
		Timeout: playwright.Float(2000),
	})
	return nil
}

// ClearComposer wipes any leftover text, best-effort.
func (m *Manager) ClearComposer(page playwright.Page) {
	box := page.Locator(composerSelector).First()
	if visible, err := box.IsVisible(); err != nil || !visible {
		return
	}
	if err := box.Click(playwright.LocatorClickOptions{Force: playwright.Bool(true)}); err != nil {
		return
	}
	_ = page.Keyboard().Press("Control+A")
	_ = page.Keyboard().Press("Backspace")
}

// ClearAttachments removes every attached image, best-effort. The sweep is
// capped so a preview that survives its remove click cannot spin the loop.
func (m *Manager) ClearAttachments(page playwright.Page) {
	for i := 0; i < 10; i++ {
		btn := page.Locator("button[aria-label*='Usuń' i], button[aria-label*='Remove' i]").First()
		count, err := btn.Count()
		if err != nil || count == 0 {
			return
		}
		visible, err := btn.IsVisible()
		if err != nil || !visible {
			return
		}
		if err := btn.Click(playwright.LocatorClickOptions{Force: playwright.Bool(true)}); err != nil {
			return
		}
		page.WaitForTimeout(150)
	}
}

// FillPrompt types the prompt into a clean composer.
func (m *Manager) FillPrompt(page playwright.Page, text string) error {
	if err := m.WaitForComposerReady(page); err != nil {
		return err
	}
	m.ClearComposer(page)
	return page.Locator(composerSelector).First().Fill(text)
}

// ClickSend clicks the send button, trying selectors in order. The last
// matching element wins because the composer's send button renders after
// any toolbar clones.
func (m *Manager) ClickSend(page playwright.Page) error {
	var lastErr error
	for _, sel := range sendSelectors {
		btn := page.Locator(sel).Last()
		count, err := btn.Count()
		if err != nil || count == 0 {
			continue
		}
		err = btn.Click(playwright.LocatorClickOptions{
			Force:   playwright.Bool(true),
			Timeout: playwright.Float(2000),
		})
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("send click failed: %w", lastErr)
	}
	return fmt.Errorf("no send button found")
}

// NewChat starts a fresh conversation via the keyboard shortcut, falling
// back to renavigation, then clears popups and leftover composer state.
func (m *Manager) NewChat(page playwright.Page) error {
	m.logger.Info().Msg("starting new chat")
	if err := page.Keyboard().Press("Control+Shift+O"); err != nil {
		if _, err := page.Goto(m.cfg.TargetURL); err != nil {
			return fmt.Errorf("new chat navigation: %w", err)
		}
	}
	page.WaitForTimeout(500)
	m.ClosePopups(page)
	if err := m.WaitForUIReady(page); err != nil {
		return err
	}
	m.ClearAttachments(page)
	m.ClearComposer(page)
	return nil
}

// CardID extracts the conversation id from the page URL, empty when the URL
// has none yet.
func (m *Manager) CardID(page playwright.Page) string {
	return cardIDFromURL(page.URL())
}

func cardIDFromURL(url string) string {
	matches := cardIDRe.FindStringSubmatch(url)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}
