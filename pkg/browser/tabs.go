package browser

import "github.com/playwright-community/playwright-go"

// tabSurface is the minimal tab control needed to enforce the two-tab
// layout. Live runs adapt a browser context; tests use a fixture.
type tabSurface interface {
	Count() int
	Open() error
	Close(idx int) error
}

// normalizeTabs forces the surface to exactly two tabs: missing ones are
// opened, extras beyond the first two are closed from the end so the lower
// indexes stay stable. Failing closes are tolerated; a failing open is not,
// because the two-tab layout cannot be reached without it.
func normalizeTabs(ts tabSurface) error {
	for ts.Count() < 2 {
		if err := ts.Open(); err != nil {
			return err
		}
	}
	for idx := ts.Count() - 1; idx >= 2; idx-- {
		_ = ts.Close(idx)
	}
	return nil
}

// contextTabs adapts a live browser context to tabSurface.
type contextTabs struct {
	ctx playwright.BrowserContext
}

func (t contextTabs) Count() int {
	return len(t.ctx.Pages())
}

func (t contextTabs) Open() error {
	_, err := t.ctx.NewPage()
	return err
}

func (t contextTabs) Close(idx int) error {
	pages := t.ctx.Pages()
	if idx < 0 || idx >= len(pages) {
		return nil
	}
	return pages[idx].Close()
}
