package position

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_WatermarksMoveOnlyInFavor(t *testing.T) {
	t.Run("long tracks the high", func(t *testing.T) {
		tr := NewTracker(100, SideLong, time.Now())
		tr.Observe(105)
		tr.Observe(95)
		tr.Observe(110)
		tr.Observe(90)

		s := tr.Snapshot()
		assert.Equal(t, 110.0, s.HighWater)
		assert.Equal(t, 100.0, s.LowWater, "low watermark is untouched for longs")
		assert.Equal(t, 90.0, s.LastPrice)
	})

	t.Run("short tracks the low", func(t *testing.T) {
		tr := NewTracker(100, SideShort, time.Now())
		tr.Observe(105)
		tr.Observe(92)
		tr.Observe(97)

		s := tr.Snapshot()
		assert.Equal(t, 92.0, s.LowWater)
		assert.Equal(t, 100.0, s.HighWater, "high watermark is untouched for shorts")
	})
}

func TestTracker_ConcurrentObserve(t *testing.T) {
	tr := NewTracker(100, SideLong, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(p float64) {
			defer wg.Done()
			tr.Observe(p)
		}(100 + float64(i))
	}
	wg.Wait()

	assert.Equal(t, 149.0, tr.Snapshot().HighWater)
}

func TestBook_ObserveAllBySymbol(t *testing.T) {
	book := NewBook()
	btc := NewTracker(50000, SideLong, time.Now())
	eth := NewTracker(3000, SideLong, time.Now())
	book.Track(1, "BTCUSDT", btc)
	book.Track(2, "ETHUSDT", eth)

	book.ObserveAll("BTCUSDT", 51000)

	assert.Equal(t, 51000.0, btc.Snapshot().HighWater)
	assert.Equal(t, 3000.0, eth.Snapshot().HighWater, "other symbols are not updated")

	book.Drop(1, "BTCUSDT")
	assert.Nil(t, book.Get(1, "BTCUSDT"))
	assert.NotNil(t, book.Get(2, "ETHUSDT"))
}
