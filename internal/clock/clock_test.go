package clock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextAdvancesPastPeer(t *testing.T) {
	c := New()
	require.EqualValues(t, 1, c.Next(0))
	require.EqualValues(t, 2, c.Next(0))
	require.EqualValues(t, 11, c.Next(10))
	require.EqualValues(t, 12, c.Next(0))
}

func TestObserveNeverRegresses(t *testing.T) {
	c := New()
	c.Next(0)
	c.Next(0)
	require.EqualValues(t, 2, c.Current())

	c.Observe(1)
	require.EqualValues(t, 2, c.Current(), "observing a lower peer must not move the clock backwards")

	c.Observe(50)
	require.EqualValues(t, 50, c.Current())
}

func TestCurrentNeverLagsAnyObservedEvent(t *testing.T) {
	c := New()
	c.Observe(7)
	require.GreaterOrEqual(t, c.Current(), uint64(7))
}

func TestConcurrentNextIsRaceFree(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Next(0)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 100, c.Current())
}
