package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecretKey(t *testing.T) {
	a, err := GenerateSecretKey(24)
	require.NoError(t, err)
	b, err := GenerateSecretKey(24)
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestCalculateDigest(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	first, err := CalculateDigest([]payload{{"a", 1}, {"b", 2}})
	require.NoError(t, err)
	same, err := CalculateDigest([]payload{{"a", 1}, {"b", 2}})
	require.NoError(t, err)
	changed, err := CalculateDigest([]payload{{"a", 1}, {"b", 3}})
	require.NoError(t, err)

	assert.Equal(t, first, same)
	assert.NotEqual(t, first, changed)
}
