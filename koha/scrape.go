package koha

import (
	"regexp"
	"strings"
)

// The OPAC reports every outcome as a 200 page, results are read off page
// markers. Patterns are kept together so vendor template changes have one
// place to land.
var (
	captchaPattern       = regexp.MustCompile(`(?s)<span class="hint">(?:.*?)<strong>(.*?)</strong></span>`)
	captchaDigestPattern = regexp.MustCompile(`<input type="hidden" name="captcha_digest" value="(.*?)" />`)
	registrationComplete = regexp.MustCompile(`(?s)<h1>Registration Complete!</h1>.*?<span id="patron-userid">(.*?)</span>.*?<span id="patron-password">(.*?)</span>`)
	alertErrorPattern    = regexp.MustCompile(`(?s)<div class="alert alert-error">(.*?)</div>`)
	csrfTokenPattern     = regexp.MustCompile(`<input type="hidden" name="csrf_token" value="(.*?)"`)
)

const (
	markerRegistrationComplete = "Registration Complete!"
	markerDuplicateEmail       = "This email address already exists in our database."
	markerSettingsUpdated      = "Settings updated"
	markerSuggestionsPage      = "Your purchase suggestions"
)

type registrationOutcome struct {
	Complete       bool
	Username       string
	Password       string
	DuplicateEmail bool
	Error          string
}

func parseRegistrationPage(body []byte) registrationOutcome {
	var out registrationOutcome
	if match := registrationComplete.FindSubmatch(body); match != nil {
		out.Complete = true
		out.Username = string(match[1])
		out.Password = string(match[2])
		return out
	}
	text := string(body)
	if strings.Contains(text, markerRegistrationComplete) {
		out.Complete = true
		return out
	}
	if strings.Contains(text, markerDuplicateEmail) {
		out.DuplicateEmail = true
		return out
	}
	if match := alertErrorPattern.FindSubmatch(body); match != nil {
		out.Error = string(match[1])
	}
	return out
}

func parseCaptcha(body []byte) (challenge string, digest string, ok bool) {
	challengeMatch := captchaPattern.FindSubmatch(body)
	digestMatch := captchaDigestPattern.FindSubmatch(body)
	if digestMatch == nil {
		return "", "", false
	}
	if challengeMatch != nil {
		challenge = string(challengeMatch[1])
	}
	return challenge, string(digestMatch[1]), true
}

func parseCsrfToken(body []byte) string {
	if match := csrfTokenPattern.FindSubmatch(body); match != nil {
		return string(match[1])
	}
	return ""
}

func parseAlertError(body []byte) string {
	if match := alertErrorPattern.FindSubmatch(body); match != nil {
		return string(match[1])
	}
	return ""
}
