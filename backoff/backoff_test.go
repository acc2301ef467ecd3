package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstant(t *testing.T) {
	s := NewConstant(5 * time.Second)
	assert.Equal(t, 5*time.Second, s.Delay(1))
	assert.Equal(t, 5*time.Second, s.Delay(10))
}

func TestExponential(t *testing.T) {
	s := NewExponential(time.Second, time.Minute)
	assert.Equal(t, time.Second, s.Delay(1))
	assert.Equal(t, 2*time.Second, s.Delay(2))
	assert.Equal(t, 4*time.Second, s.Delay(3))
	assert.Equal(t, time.Minute, s.Delay(20), "delay is capped at Max")
}

func TestExponentialNoMax(t *testing.T) {
	s := NewExponential(time.Second, 0)
	assert.Equal(t, 8*time.Second, s.Delay(4))
}

func TestExponentialWithJitter(t *testing.T) {
	s := NewExponentialWithJitter(time.Second, time.Minute)
	for attempt := 1; attempt <= 10; attempt++ {
		d := s.Delay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Minute)
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := DefaultStrategy()
	for attempt := 1; attempt <= 20; attempt++ {
		assert.LessOrEqual(t, s.Delay(attempt), 10*time.Second)
	}
}
