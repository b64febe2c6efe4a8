package health

import "github.com/playwright-community/playwright-go"

// PageProbe adapts a live Playwright page to the Probe interface.
type PageProbe struct {
	page playwright.Page
}

// NewPageProbe wraps a page for classification.
func NewPageProbe(page playwright.Page) *PageProbe {
	return &PageProbe{page: page}
}

func (p *PageProbe) ContainsText(text string) (bool, error) {
	count, err := p.page.GetByText(text).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *PageProbe) HasElement(selector string) (bool, error) {
	count, err := p.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *PageProbe) URL() string {
	return p.page.URL()
}

func (p *PageProbe) Title() string {
	title, err := p.page.Title()
	if err != nil {
		return ""
	}
	return title
}
