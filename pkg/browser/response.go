package browser

import (
	"github.com/playwright-community/playwright-go"
)

// WaitStatus is the outcome of a response wait.
type WaitStatus string

const (
	// StatusResponse means the model produced visible text.
	StatusResponse WaitStatus = "response"

	// StatusLimitPro means the quota banner appeared instead of a response.
	StatusLimitPro WaitStatus = "limit_pro"

	// StatusTimeout means neither showed up within the deadline.
	StatusTimeout WaitStatus = "timeout"
)

// DefaultResponseTimeoutMS bounds one response wait. Pro answers on large
// scans routinely take minutes.
const DefaultResponseTimeoutMS = 350_000

// responseCheckScript runs inside the page until it returns non-null: either
// the quota banner is up, or the last model response is visible with real
// text. Thinking-progress headers do not count as content; a leading header
// is stripped before the emptiness check.
const responseCheckScript = `() => {
	const bodyText = document.body.innerText || '';
	const limitPattern = /Zwiększ limit|Increase your limit|Osiągnięto limit|limit reached|You('|')ve reached|Przekroczono limit/i;
	if (limitPattern.test(bodyText)) {
		return {found: true, isLimit: true, text: ''};
	}

	const responses = document.querySelectorAll('model-response');
	if (responses.length === 0) {
		return null;
	}

	const lastResponse = responses[responses.length - 1];
	if (!lastResponse.offsetParent) {
		return null;
	}

	const rawText = (lastResponse.innerText || '').trim();
	if (!rawText) {
		return null;
	}

	let cleaned = rawText;
	if (/^(Analiza|Pokaż przebieg rozumowania|Show reasoning|Thinking process)\s*$/i.test(cleaned)) {
		return null;
	}
	cleaned = cleaned.replace(/^(Analiza|Pokaż przebieg rozumowania|Show reasoning|Thinking process)\s*\n+/i, '').trim();

	if (cleaned) {
		return {found: true, isLimit: false, text: cleaned};
	}
	return null;
}`

// limitBannerTexts are the quota phrases the in-page pattern matches,
// re-checked through locators by the timeout fallback.
var limitBannerTexts = []string{
	"Zwiększ limit",
	"Increase your limit",
	"Osiągnięto limit",
	"limit reached",
	"Przekroczono limit",
}

// LimitBannerVisible re-scans the page for the quota banner. A banner that
// renders only after the response wait gave up still classifies the attempt
// as a limit instead of a timeout.
func (m *Manager) LimitBannerVisible(page playwright.Page) bool {
	for _, text := range limitBannerTexts {
		if count, err := page.GetByText(text).Count(); err == nil && count > 0 {
			return true
		}
	}
	return false
}

// WaitForResponseOrLimit blocks until the model responds, the quota banner
// appears, or timeoutMS elapses. The condition runs in the page itself, so
// the wait ends the moment the DOM settles instead of on a polling tick.
// timeoutMS of zero means DefaultResponseTimeoutMS. limitCheck, when non-nil,
// gets one last look after a timeout in case the banner rendered in a form
// the in-page pattern missed.
func (m *Manager) WaitForResponseOrLimit(page playwright.Page, timeoutMS float64, limitCheck func(playwright.Page) bool) (string, WaitStatus) {
	if timeoutMS <= 0 {
		timeoutMS = DefaultResponseTimeoutMS
	}

	// Let the UI settle after the send click before watching the DOM.
	page.WaitForTimeout(350)

	handle, err := page.WaitForFunction(responseCheckScript, nil, playwright.PageWaitForFunctionOptions{
		Timeout: playwright.Float(timeoutMS),
	})
	if err != nil {
		m.logger.Debug().Err(err).Msg("response wait ended without a result")
		if limitCheck != nil && limitCheck(page) {
			return "", StatusLimitPro
		}
		return "", StatusTimeout
	}

	value, err := handle.JSONValue()
	if err != nil {
		m.logger.Debug().Err(err).Msg("response payload unreadable")
		return "", StatusTimeout
	}

	result, ok := value.(map[string]interface{})
	if !ok {
		return "", StatusTimeout
	}
	if isLimit, _ := result["isLimit"].(bool); isLimit {
		return "", StatusLimitPro
	}
	text, _ := result["text"].(string)
	if text == "" {
		return "", StatusTimeout
	}
	return text, StatusResponse
}
