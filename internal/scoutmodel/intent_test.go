package scoutmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIntentIdempotent(t *testing.T) {
	cases := []string{
		"Click the Login Button",
		"login-button",
		"  fill Email Input  ",
		"",
	}
	for _, c := range cases {
		once := NormalizeIntent(c)
		twice := NormalizeIntent(string(once))
		assert.Equal(t, once, twice, "NormalizeIntent must be idempotent for %q", c)
	}
}

func TestNormalizeIntentCollapsesSeparators(t *testing.T) {
	assert.Equal(t, Intent("login_button"), NormalizeIntent("login-button"))
	assert.Equal(t, Intent("login_button"), NormalizeIntent("login_button"))
	assert.Equal(t, Intent("email_input"), NormalizeIntent("fill the Email input"))
}

func TestTokenOverlapScoreSynonyms(t *testing.T) {
	a := NormalizeIntent("click login")
	b := NormalizeIntent("click sign in")
	score := TokenOverlapScore(a, b)
	assert.GreaterOrEqual(t, score, 0.7, "login and sign in should be recognized as synonyms")
}

func TestTokenOverlapScoreUnrelated(t *testing.T) {
	a := NormalizeIntent("click login")
	b := NormalizeIntent("add to cart")
	score := TokenOverlapScore(a, b)
	assert.Less(t, score, 0.3)
}

func TestLooksLikeSelector(t *testing.T) {
	assert.True(t, LooksLikeSelector("#login"))
	assert.True(t, LooksLikeSelector(".submit-btn"))
	assert.True(t, LooksLikeSelector(`[data-test*="sign"]`))
	assert.True(t, LooksLikeSelector("//button[1]"))
	assert.False(t, LooksLikeSelector("click the login button"))
}

func TestExtractIntentFromSelector(t *testing.T) {
	got := ExtractIntentFromSelector(`[data-test*="sign"]`)
	assert.Equal(t, Intent("sign"), got)
}
