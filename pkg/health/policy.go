package health

// Critical reports whether the issue requires human attention. The browser
// layer translates critical issues into a fatal session error; non-critical
// ones are logged and execution continues.
func (i Issue) Critical() bool {
	switch i {
	case IssueLoginRequired, IssueVerificationRequired, IssueCaptchaDetected:
		return true
	}
	return false
}

// ShouldPauseProfile reports whether the profile must be taken out of
// automated scheduling until an operator resumes it.
func (i Issue) ShouldPauseProfile() bool {
	switch i {
	case IssueCaptchaDetected, IssueVerificationRequired:
		return true
	}
	return false
}

// RecoverySuggestion returns fixed remediation instructions for operators.
func (i Issue) RecoverySuggestion() string {
	switch i {
	case IssueLoginRequired:
		return "Session expired. Re-login with a headed run:\n" +
			"  OCR_PROFILE_SUFFIX=<profile> OCR_HEADED=1 ocr-worker run"
	case IssueVerificationRequired:
		return "Identity verification required. Run headed mode:\n" +
			"  OCR_PROFILE_SUFFIX=<profile> OCR_HEADED=1 ocr-worker run\n" +
			"Complete verification in the browser window."
	case IssueSMSVerification:
		return "SMS/phone verification requested. Complete it manually in a headed run."
	case IssueOAuthAppVerification:
		return "OAuth app verification dialog detected. Auto-login will try to confirm it."
	case IssueBrowserUnsupported:
		return "Browser compatibility issue. Update the Playwright driver and browsers,\n" +
			"then check the configured user agent."
	case IssueCaptchaDetected:
		return "CAPTCHA detected - manual intervention required.\n" +
			"Profile will be paused. Solve it in a headed run:\n" +
			"  OCR_PROFILE_SUFFIX=<profile> OCR_HEADED=1 ocr-worker run"
	case IssueAccountRedirect:
		return "Redirected to an account page (expired session, security check, or\n" +
			"terms update). Run headed mode to investigate."
	}
	return "Unknown session issue. Check saved screenshots and traces."
}

// Report bundles the diagnostics persisted alongside a critical event.
type Report struct {
	Issue       Issue  `json:"issue_type"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Suggestion  string `json:"suggestion"`
	Critical    bool   `json:"critical"`
	ShouldPause bool   `json:"should_pause"`
}

// Diagnose gathers diagnostic context for a detected issue.
func Diagnose(p Probe, issue Issue) Report {
	return Report{
		Issue:       issue,
		URL:         p.URL(),
		Title:       p.Title(),
		Suggestion:  issue.RecoverySuggestion(),
		Critical:    issue.Critical(),
		ShouldPause: issue.ShouldPauseProfile(),
	}
}

// Meta renders the report as a flat map for the critical-event log.
func (r Report) Meta() map[string]any {
	return map[string]any{
		"issue_type":   string(r.Issue),
		"url":          r.URL,
		"title":        r.Title,
		"suggestion":   r.Suggestion,
		"critical":     r.Critical,
		"should_pause": r.ShouldPause,
	}
}
