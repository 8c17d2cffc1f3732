package clock

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestFake(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewFake(start)

	var hooked []time.Time
	c.OnSleep = func(now time.Time) { hooked = append(hooked, now) }

	assert.NilError(t, c.Sleep(context.Background(), time.Second))
	c.Advance(time.Minute)
	assert.Assert(t, c.Now().Equal(start.Add(time.Minute+time.Second)))
	assert.DeepEqual(t, []time.Duration{time.Second}, c.Sleeps())
	assert.Equal(t, 1, len(hooked))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Sleep(ctx, time.Second), context.Canceled)
	assert.Equal(t, 1, len(c.Sleeps()))
}

func TestReal_SleepCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Real().Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
