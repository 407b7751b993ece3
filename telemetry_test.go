package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingMinMaxEmpty(t *testing.T) {
	r := NewRollingMinMax()
	assert.Equal(t, 0.0, r.Min())
	assert.Equal(t, 0.0, r.Max())
}

func TestRollingMinMaxSingleValue(t *testing.T) {
	r := NewRollingMinMax()
	r.updateAt(100, 0)
	assert.Equal(t, 100.0, r.Min())
	assert.Equal(t, 100.0, r.Max())
}

func TestRollingMinMaxMultipleValuesSameMinute(t *testing.T) {
	r := NewRollingMinMax()
	r.updateAt(100, 0)
	r.updateAt(50, 0)
	r.updateAt(150, 0)
	assert.Equal(t, 50.0, r.Min())
	assert.Equal(t, 150.0, r.Max())
}

func TestRollingMinMaxMultipleMinutes(t *testing.T) {
	r := NewRollingMinMax()
	r.updateAt(100, 0)
	r.updateAt(200, 1)
	r.updateAt(50, 2)
	assert.Equal(t, 50.0, r.Min())
	assert.Equal(t, 200.0, r.Max())
}

func TestRollingMinMaxMissedMinutesClearsOldData(t *testing.T) {
	r := NewRollingMinMax()
	r.updateAt(100, 0)
	r.updateAt(50, 1)
	r.updateAt(75, 5)
	assert.Equal(t, 50.0, r.Min())
	assert.Equal(t, 100.0, r.Max())
}

func TestRollingMinMaxWrapAround(t *testing.T) {
	r := NewRollingMinMax()
	r.updateAt(100, 58)
	r.updateAt(200, 59)
	r.updateAt(150, 2)
	assert.Equal(t, 100.0, r.Min())
	assert.Equal(t, 200.0, r.Max())
}
