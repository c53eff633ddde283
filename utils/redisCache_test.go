package utils

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyIgnoresOrderAndEmptyValues(t *testing.T) {
	cache := NewRedisCache(nil, "charges_summary", 0)

	a := cache.GenerateKey(map[string]string{"carrier": "ups", "company_id": "acme", "currency": ""})
	b := cache.GenerateKey(map[string]string{"company_id": "acme", "carrier": "ups"})
	c := cache.GenerateKey(map[string]string{"company_id": "acme", "carrier": "fedex"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "charges_summary:"))
}

func TestRedisCacheWithoutClientIsDisabled(t *testing.T) {
	cache := NewRedisCache(nil, "charges_summary", 0)

	var dest map[string]string
	found, err := cache.GetJSON(context.Background(), "k", &dest)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.SetJSON(context.Background(), "k", map[string]string{"a": "b"}))
	assert.NoError(t, cache.InvalidateAll(context.Background()))
}
