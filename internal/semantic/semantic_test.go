package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

func TestInferIntentTypePasswordField(t *testing.T) {
	typ, conf, ok := InferIntentType(scoutmodel.VerbFill, "password field")
	require.True(t, ok)
	assert.Equal(t, TypePasswordInput, typ)
	assert.Greater(t, conf, 0.0)
}

func TestInferIntentTypeAddToCart(t *testing.T) {
	typ, _, ok := InferIntentType(scoutmodel.VerbClick, "add item to cart")
	require.True(t, ok)
	assert.Equal(t, TypeAddToCart, typ)
}

func TestInferIntentTypeNoMatch(t *testing.T) {
	_, _, ok := InferIntentType(scoutmodel.VerbClick, "random unrelated widget")
	assert.False(t, ok)
}

// TestPageTypesPasswordField implements the worked scenario: a page
// containing <input type="password" id="p"> resolves a password-entry
// intent to a high-confidence PASSWORD_INPUT match on #p.
func TestPageTypesPasswordField(t *testing.T) {
	page := `<html><body><input type="password" id="p"></body></html>`
	cands := PageTypes(page)
	require.NotEmpty(t, cands)

	assert.Equal(t, TypePasswordInput, cands[0].Type)
	assert.Equal(t, "#p", cands[0].Selector.Value)
	assert.GreaterOrEqual(t, cands[0].Score, 0.8)
}

func TestPageTypesAddToCartButton(t *testing.T) {
	page := `<html><body><button data-testid="add-cart-btn">Add to Cart</button></body></html>`
	cands := PageTypes(page)
	require.NotEmpty(t, cands)
	assert.Equal(t, TypeAddToCart, cands[0].Type)
	assert.Equal(t, `[data-testid="add-cart-btn"]`, cands[0].Selector.Value)
	assert.Equal(t, scoutmodel.KindTestID, cands[0].Selector.Kind)
}

func TestPageTypesNoMatchReturnsEmpty(t *testing.T) {
	page := `<html><body><div id="unrelated">hello</div></body></html>`
	assert.Empty(t, PageTypes(page))
}

func TestPageTypesEmptyHTML(t *testing.T) {
	assert.Empty(t, PageTypes(""))
}

func TestDNAFromAttrsPrefersTestIDOverID(t *testing.T) {
	page := `<html><body><input type="email" id="e" data-testid="email-input"></body></html>`
	cands := PageTypes(page)
	require.NotEmpty(t, cands)
	assert.Equal(t, "email-input", cands[0].DNA.TestID)
	assert.Equal(t, "e", cands[0].DNA.ID)
	assert.Equal(t, scoutmodel.KindTestID, cands[0].Selector.Kind)
}
