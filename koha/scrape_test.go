package koha

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const registrationCompletePage = `<html><body>
<h1>Registration Complete!</h1>
<p>You may log in using:</p>
<span id="patron-userid">23000012345678</span>
<span id="patron-password">s3cret</span>
</body></html>`

func TestParseRegistrationComplete(t *testing.T) {
	out := parseRegistrationPage([]byte(registrationCompletePage))
	assert.True(t, out.Complete)
	assert.Equal(t, "23000012345678", out.Username)
	assert.Equal(t, "s3cret", out.Password)
}

func TestParseRegistrationCompleteNoBarcode(t *testing.T) {
	out := parseRegistrationPage([]byte(`<html><h1>Registration Complete!</h1></html>`))
	assert.True(t, out.Complete)
	assert.Equal(t, "", out.Username)
}

func TestParseRegistrationDuplicateEmail(t *testing.T) {
	out := parseRegistrationPage([]byte(`<html>This email address already exists in our database.</html>`))
	assert.False(t, out.Complete)
	assert.True(t, out.DuplicateEmail)
}

func TestParseRegistrationError(t *testing.T) {
	out := parseRegistrationPage([]byte(`<html><div class="alert alert-error">You have not filled out all required fields.</div></html>`))
	assert.False(t, out.Complete)
	assert.Contains(t, out.Error, "required fields")
}

func TestParseCaptcha(t *testing.T) {
	page := `<html>
<span class="hint">Please type the following characters into the box below: <strong>QZKT</strong></span>
<input type="hidden" name="captcha_digest" value="abc123" />
</html>`
	challenge, digest, ok := parseCaptcha([]byte(page))
	assert.True(t, ok)
	assert.Equal(t, "QZKT", challenge)
	assert.Equal(t, "abc123", digest)

	_, _, ok = parseCaptcha([]byte(`<html>no captcha here</html>`))
	assert.False(t, ok)
}

func TestParseCsrfToken(t *testing.T) {
	page := `<form><input type="hidden" name="csrf_token" value="deadbeef" /></form>`
	assert.Equal(t, "deadbeef", parseCsrfToken([]byte(page)))
	assert.Equal(t, "", parseCsrfToken([]byte("<form></form>")))
}

func TestFineTypeLabel(t *testing.T) {
	assert.Equal(t, "Overdue fine", fineTypeLabel("F"))
	assert.Equal(t, "Lost item", fineTypeLabel("L"))
	// unknown codes pass through
	assert.Equal(t, "XX", fineTypeLabel("XX"))
}
