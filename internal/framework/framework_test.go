package framework

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

func TestCandidatesUniversalButton(t *testing.T) {
	intent := scoutmodel.NormalizeIntent("click login button")
	cands := Candidates(intent, Universal)
	require.NotEmpty(t, cands)

	found := false
	for _, c := range cands {
		if c.Category == CategoryButton {
			found = true
			assert.NotContains(t, c.Selector.Value, "{text}")
		}
	}
	assert.True(t, found)
}

func TestCandidatesFrameworkRankedAboveUniversal(t *testing.T) {
	intent := scoutmodel.NormalizeIntent("click login button")
	cands := Candidates(intent, Material)
	require.NotEmpty(t, cands)

	var sawMaterial, sawUniversal bool
	minMaterial, maxUniversal := 1.0, 0.0
	for _, c := range cands {
		if c.Category != CategoryButton {
			continue
		}
		if c.Framework == Material {
			sawMaterial = true
			if c.Relevance < minMaterial {
				minMaterial = c.Relevance
			}
		}
		if c.Framework == Universal {
			sawUniversal = true
			if c.Relevance > maxUniversal {
				maxUniversal = c.Relevance
			}
		}
	}
	assert.True(t, sawMaterial)
	assert.True(t, sawUniversal)
	assert.Greater(t, minMaterial, maxUniversal)
}

func TestCandidatesNoKeywordMatchIsEmpty(t *testing.T) {
	intent := scoutmodel.NormalizeIntent("xyzzy plugh")
	cands := Candidates(intent, Universal)
	assert.Empty(t, cands)
}

func TestFillSlotsSubstitutesName(t *testing.T) {
	intent := scoutmodel.NormalizeIntent("fill email input")
	cands := Candidates(intent, Universal)
	var sawName bool
	for _, c := range cands {
		if strings.Contains(c.Selector.Value, `name="email_input"`) {
			sawName = true
		}
	}
	assert.True(t, sawName)
}
