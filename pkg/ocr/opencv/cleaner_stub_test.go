//go:build !gocv

package opencv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithoutOpenCV(t *testing.T) {
	assert.False(t, Available())
	c, err := New()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, c)
}
