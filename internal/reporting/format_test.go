package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayAmount(t *testing.T) {
	assert.Equal(t, "123.45", DisplayAmount(12345, 2))
	assert.Equal(t, "-123.45", DisplayAmount(-12345, 2))
	assert.Equal(t, "0.00", DisplayAmount(0, 2))
	assert.Equal(t, "0.05", DisplayAmount(5, 2))
	assert.Equal(t, "500", DisplayAmount(500, 0))
	assert.Equal(t, "-0.001", DisplayAmount(-1, 3))
}
