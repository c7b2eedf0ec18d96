package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStringInSlice(t *testing.T) {
	assert.True(t, IsStringInSlice("b", []string{"a", "b", "c"}))
	assert.False(t, IsStringInSlice("d", []string{"a", "b", "c"}))
	assert.False(t, IsStringInSlice("a", nil))
}

func TestExtractEmailAddress(t *testing.T) {
	assert.Equal(t, "jane@example.com", ExtractEmailAddress("Jane Doe <jane@example.com>"))
	assert.Equal(t, "jane@example.com", ExtractEmailAddress("jane@example.com"))
	assert.Equal(t, "jane@example.com", ExtractEmailAddress("<jane@example.com>"))
	assert.Equal(t, "", ExtractEmailAddress(""))
}

func TestNormalizeHeaderKey(t *testing.T) {
	assert.Equal(t, "x-autoreply", NormalizeHeaderKey("X-Autoreply"))
	assert.Equal(t, "subject", NormalizeHeaderKey("Subject"))
}
