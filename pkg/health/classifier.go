// Package health classifies the state of a live page into a closed set of
// session issues (login walls, verification prompts, CAPTCHA, redirects).
// Detection is a pure scan over an ordered indicator table; each issue kind
// carries fixed policy bits that callers use to decide between raising a
// fatal error, pausing the profile, or logging and moving on.
package health

import "strings"

// Issue identifies one kind of session problem.
type Issue string

const (
	IssueLoginRequired        Issue = "login_required"
	IssueVerificationRequired Issue = "verification_required"
	IssueSMSVerification      Issue = "sms_verification_required"
	IssueOAuthAppVerification Issue = "oauth_app_verification"
	IssueBrowserUnsupported   Issue = "browser_unsupported"
	IssueCaptchaDetected      Issue = "captcha_detected"
	IssueAccountRedirect      Issue = "account_redirect"

	// IssueUnknown is never matched by the indicator table; it labels an
	// otherwise-unclassified failure when a caller summarizes one.
	IssueUnknown Issue = "unknown"
)

// strategy selects how an indicator pattern is checked against the page.
type strategy int

const (
	matchText    strategy = iota // visible-text containment
	matchURL                     // URL substring
	matchElement                 // selector resolves to at least one element
)

type indicator struct {
	kind     Issue
	pattern  string
	strategy strategy
}

// indicators is scanned in order and the first hit wins. Order matters:
// several login/verification phrases are substrings of contexts matched by
// broader indicators further down.
var indicators = []indicator{
	{IssueLoginRequired, "Zaloguj się", matchText},
	{IssueLoginRequired, "Sign in", matchText},
	{IssueLoginRequired, "Sign in to continue", matchText},

	{IssueVerificationRequired, "Verify it's you", matchText},
	{IssueVerificationRequired, "Potwierdź tożsamość", matchText},
	{IssueVerificationRequired, "Verify your identity", matchText},
	{IssueVerificationRequired, "Potwierdź, że to Ty", matchText},

	{IssueSMSVerification, "Get a verification code", matchText},
	{IssueSMSVerification, "Uzyskaj kod weryfikacyjny", matchText},
	{IssueSMSVerification, "Text me a verification code", matchText},
	{IssueSMSVerification, "Wyślij mi SMS z kodem", matchText},
	{IssueSMSVerification, "Confirm your phone number", matchText},
	{IssueSMSVerification, "Potwierdź numer telefonu", matchText},
	{IssueSMSVerification, "2-Step Verification", matchText},
	{IssueSMSVerification, "Weryfikacja dwuetapowa", matchText},
	{IssueSMSVerification, "Enter the code we sent", matchText},
	{IssueSMSVerification, "Wpisz kod, który wysłaliśmy", matchText},

	{IssueOAuthAppVerification, "Make sure this app is from Google", matchText},
	{IssueOAuthAppVerification, "Make sure Google made this app", matchText},
	{IssueOAuthAppVerification, "Sprawdź, czy ta aplikacja została pobrana z Google", matchText},
	{IssueOAuthAppVerification, "Sign in with Google", matchText},
	{IssueOAuthAppVerification, "Zaloguj się przez Google", matchText},

	{IssueBrowserUnsupported, "This browser isn't supported", matchText},
	{IssueBrowserUnsupported, "Twoja przeglądarka nie jest obsługiwana", matchText},
	{IssueBrowserUnsupported, "Browser not supported", matchText},
	{IssueBrowserUnsupported, "Update your browser", matchText},

	{IssueCaptchaDetected, "I'm not a robot", matchText},
	{IssueCaptchaDetected, "reCAPTCHA", matchText},
	{IssueCaptchaDetected, "Verify you're human", matchText},
	{IssueCaptchaDetected, "Potwierdź, że jesteś człowiekiem", matchText},
	{IssueCaptchaDetected, "iframe[src*='recaptcha']", matchElement},
	{IssueCaptchaDetected, "iframe[title*='reCAPTCHA']", matchElement},
	{IssueCaptchaDetected, "div.g-recaptcha", matchElement},
	{IssueCaptchaDetected, "div[id*='captcha']", matchElement},

	{IssueAccountRedirect, "accounts.google.com", matchURL},
	{IssueAccountRedirect, "myaccount.google.com", matchURL},
}

// Probe is the minimal read-only view of a page the classifier needs.
// The playwright adapter implements it for live pages; tests use fixtures.
type Probe interface {
	// ContainsText reports whether the given text is present on the page.
	ContainsText(text string) (bool, error)

	// HasElement reports whether the selector resolves to any element.
	HasElement(selector string) (bool, error)

	// URL returns the page's current URL.
	URL() string

	// Title returns the page title, best-effort.
	Title() string
}

// Detect scans the indicator table against the page and returns the first
// matching issue. It is side-effect-free; a failing individual check never
// aborts the scan.
func Detect(p Probe) (Issue, bool) {
	url := p.URL()
	for _, ind := range indicators {
		switch ind.strategy {
		case matchText:
			ok, err := p.ContainsText(ind.pattern)
			if err == nil && ok {
				return ind.kind, true
			}
		case matchURL:
			if url != "" && strings.Contains(url, ind.pattern) {
				return ind.kind, true
			}
		case matchElement:
			ok, err := p.HasElement(ind.pattern)
			if err == nil && ok {
				return ind.kind, true
			}
		}
	}
	return "", false
}
