package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickClock_DeliversAndStops(t *testing.T) {
	c := NewTickClock(1)
	c.Start(time.Millisecond)

	for i := 0; i < 3; i++ {
		select {
		case _, ok := <-c.Ch:
			require.True(t, ok)
		case <-time.After(5 * time.Second):
			t.Fatal("tick not delivered")
		}
	}
	c.Stop()
	c.Stop()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-c.Ch:
			if !ok {
				assert.GreaterOrEqual(t, c.Count(), int64(3))
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after Stop")
		}
	}
}

func TestTickClock_StopWithoutConsumer(t *testing.T) {
	c := NewTickClock(0)
	c.Start(time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	c.Stop()

	select {
	case <-drain(c.Ch):
	case <-time.After(5 * time.Second):
		t.Fatal("clock goroutine did not exit")
	}
	assert.Equal(t, int64(0), c.Count())
}

func drain(ch <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	return done
}
