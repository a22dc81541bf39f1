package semaphore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSemaphore(t *testing.T) {
	s := New(2)
	assert.Equal(t, 0, s.Len())

	s.Wait()
	s.Wait()
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.TryWait())

	s.Signal()
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.TryWait())
	assert.Equal(t, 2, s.Len())
}
