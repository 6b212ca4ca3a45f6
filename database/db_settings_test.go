package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTrueish(t *testing.T) {
	for _, v := range []string{"1", "t", "true", "y", "yes", "on", " TRUE ", "Yes"} {
		assert.True(t, IsTrueish(v), "value %q", v)
	}
	for _, v := range []string{"", "0", "false", "off", "maybe"} {
		assert.False(t, IsTrueish(v), "value %q", v)
	}
}
