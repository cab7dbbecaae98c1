package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/WitIOT/tao/clock"
)

func Test_AfterSecondsElapsed(t *testing.T) {
	d := clock.AfterSeconds(0)
	assert.True(t, d.Elapsed())

	d = clock.AfterSeconds(60)
	assert.False(t, d.Elapsed())
	assert.Greater(t, d.Remaining(), 59*time.Second)
}

func Test_TimestampRoundTrip(t *testing.T) {
	now := time.Now()
	ts := clock.FromTime(now)
	assert.Equal(t, now.Unix(), ts.Time().Unix())
}
