package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureProbe simulates a page with fixed text fragments, elements and URL.
type fixtureProbe struct {
	texts    []string
	elements []string
	url      string
	title    string

	// failOn makes individual checks error, to verify scan resilience.
	failOn map[string]bool
}

func (f *fixtureProbe) ContainsText(text string) (bool, error) {
	if f.failOn[text] {
		return false, errors.New("broken selector engine")
	}
	for _, t := range f.texts {
		if t == text {
			return true, nil
		}
	}
	return false, nil
}

func (f *fixtureProbe) HasElement(selector string) (bool, error) {
	if f.failOn[selector] {
		return false, errors.New("broken selector engine")
	}
	for _, e := range f.elements {
		if e == selector {
			return true, nil
		}
	}
	return false, nil
}

func (f *fixtureProbe) URL() string   { return f.url }
func (f *fixtureProbe) Title() string { return f.title }

func TestDetectNoIssue(t *testing.T) {
	probe := &fixtureProbe{url: "https://gemini.google.com/app"}
	_, found := Detect(probe)
	assert.False(t, found)
}

func TestDetectLoginRequired(t *testing.T) {
	probe := &fixtureProbe{texts: []string{"Sign in"}}
	issue, found := Detect(probe)
	require.True(t, found)
	assert.Equal(t, IssueLoginRequired, issue)
}

func TestDetectCaptchaByElement(t *testing.T) {
	probe := &fixtureProbe{elements: []string{"iframe[src*='recaptcha']"}}
	issue, found := Detect(probe)
	require.True(t, found)
	assert.Equal(t, IssueCaptchaDetected, issue)
}

func TestDetectAccountRedirectByURL(t *testing.T) {
	probe := &fixtureProbe{url: "https://accounts.google.com/v3/signin/challenge"}
	issue, found := Detect(probe)
	require.True(t, found)
	assert.Equal(t, IssueAccountRedirect, issue)
}

// Table order wins: a page matching both a login indicator and an account
// redirect must classify as login_required, deterministically.
func TestDetectFirstMatchWins(t *testing.T) {
	probe := &fixtureProbe{
		texts: []string{"Zaloguj się"},
		url:   "https://accounts.google.com/signin",
	}
	for i := 0; i < 20; i++ {
		issue, found := Detect(probe)
		require.True(t, found)
		assert.Equal(t, IssueLoginRequired, issue)
	}
}

// One broken indicator must not abort the scan; later indicators still match.
func TestDetectToleratesFailingChecks(t *testing.T) {
	probe := &fixtureProbe{
		texts:  []string{"reCAPTCHA"},
		failOn: map[string]bool{"Sign in": true, "Verify it's you": true},
	}
	issue, found := Detect(probe)
	require.True(t, found)
	assert.Equal(t, IssueCaptchaDetected, issue)
}

func TestPolicyBits(t *testing.T) {
	assert.True(t, IssueLoginRequired.Critical())
	assert.True(t, IssueVerificationRequired.Critical())
	assert.True(t, IssueCaptchaDetected.Critical())
	assert.False(t, IssueSMSVerification.Critical())
	assert.False(t, IssueOAuthAppVerification.Critical())
	assert.False(t, IssueBrowserUnsupported.Critical())
	assert.False(t, IssueAccountRedirect.Critical())

	assert.True(t, IssueCaptchaDetected.ShouldPauseProfile())
	assert.True(t, IssueVerificationRequired.ShouldPauseProfile())
	assert.False(t, IssueLoginRequired.ShouldPauseProfile())
}

func TestUnknownNeverMatched(t *testing.T) {
	// A page stuffed with unrelated text must not classify as anything,
	// in particular not as the unknown fallback.
	probe := &fixtureProbe{texts: []string{"Completely ordinary page"}}
	issue, found := Detect(probe)
	assert.False(t, found)
	assert.NotEqual(t, IssueUnknown, issue)
}

func TestDiagnose(t *testing.T) {
	probe := &fixtureProbe{
		url:   "https://accounts.google.com/signin",
		title: "Google Accounts",
	}
	report := Diagnose(probe, IssueCaptchaDetected)
	assert.Equal(t, IssueCaptchaDetected, report.Issue)
	assert.Equal(t, "Google Accounts", report.Title)
	assert.True(t, report.Critical)
	assert.True(t, report.ShouldPause)
	assert.NotEmpty(t, report.Suggestion)

	meta := report.Meta()
	assert.Equal(t, "captcha_detected", meta["issue_type"])
	assert.Equal(t, true, meta["should_pause"])
}
