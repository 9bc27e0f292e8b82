package countdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func tickN(c *Clock, n int) {
	for i := 0; i < n; i++ {
		c.Tick()
	}
}

func TestTickBorrowsFromMinutes(t *testing.T) {
	c := New(6, 12)

	tickN(c, 13)

	m, s := c.Reading()
	assert.Equal(t, 5, m)
	assert.Equal(t, 59, s)
}

func TestTickWrapsInsteadOfGoingNegative(t *testing.T) {
	c := New(9, 59)

	// walk down to (0,0): 9*60+59 ticks
	tickN(c, 9*60+59)
	m, s := c.Reading()
	assert.Equal(t, 0, m)
	assert.Equal(t, 0, s)

	c.Tick()
	m, s = c.Reading()
	assert.Equal(t, 9, m)
	assert.Equal(t, 59, s)
}

func TestStartAndStop(t *testing.T) {
	c := New(1, 30)

	c.Start(time.Millisecond)
	defer c.Stop()

	assert.Eventually(t, func() bool {
		m, s := c.Reading()
		return m != 1 || s != 30
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	m1, s1 := c.Reading()
	time.Sleep(20 * time.Millisecond)
	m2, s2 := c.Reading()
	assert.Equal(t, m1, m2)
	assert.Equal(t, s1, s2)

	// second Stop must not panic
	c.Stop()
}
