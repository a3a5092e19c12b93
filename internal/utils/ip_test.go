package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedIP(t *testing.T) {
	allowed := []string{"185.71.76.0/27", "2a02:5180::/32", "bad-cidr"}

	assert.True(t, IsAllowedIP("185.71.76.5", allowed))
	assert.True(t, IsAllowedIP("2a02:5180::1", allowed))
	assert.False(t, IsAllowedIP("8.8.8.8", allowed))
	assert.False(t, IsAllowedIP("not-an-ip", allowed))
	assert.False(t, IsAllowedIP("", allowed))
}
