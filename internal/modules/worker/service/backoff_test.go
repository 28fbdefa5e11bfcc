package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUpToCeiling(t *testing.T) {
	b := NewBackoff(30*time.Second, 16*time.Minute)

	assert.Equal(t, 30*time.Second, b.Current())
	assert.Equal(t, time.Minute, b.Fail())
	assert.Equal(t, 2*time.Minute, b.Fail())
	assert.Equal(t, 4*time.Minute, b.Fail())
	assert.Equal(t, 8*time.Minute, b.Fail())
	assert.Equal(t, 16*time.Minute, b.Fail())
	// потолок: дальше не растёт
	assert.Equal(t, 16*time.Minute, b.Fail())
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(30*time.Second, 16*time.Minute)
	b.Fail()
	b.Fail()
	b.Reset()
	assert.Equal(t, 30*time.Second, b.Current())
	assert.Equal(t, time.Minute, b.Fail())
}

func TestBackoffCeilingBelowDouble(t *testing.T) {
	b := NewBackoff(10*time.Second, 15*time.Second)
	assert.Equal(t, 15*time.Second, b.Fail())
}
