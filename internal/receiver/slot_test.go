package receiver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotIdentifiersNeverDecrease(t *testing.T) {
	var s frameSlot
	last := uint64(0)
	for i := 0; i < 100; i++ {
		id := s.store(&Frame{Width: 1, Height: 1, Pix: []byte{0, 0, 0}})
		assert.Greater(t, id, last)
		last = id
	}
	assert.Equal(t, last, s.currentID())
}

func TestSlotSnapshotBeforeFirstStore(t *testing.T) {
	var s frameSlot
	f, id := s.snapshot()
	assert.Nil(t, f)
	assert.Zero(t, id)
}

func TestSlotSnapshotIsACopy(t *testing.T) {
	var s frameSlot
	s.store(&Frame{Width: 1, Height: 1, Pix: []byte{1, 2, 3}})

	f, id := s.snapshot()
	require.NotNil(t, f)
	assert.Equal(t, uint64(1), id)

	f.Pix[0] = 0xff
	again, _ := s.snapshot()
	assert.Equal(t, byte(1), again.Pix[0])
}

func TestSlotConcurrentReaders(t *testing.T) {
	var s frameSlot
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.store(&Frame{Width: 2, Height: 2, Pix: make([]byte, 12)})
		}
		close(stop)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, id := s.snapshot()
				require.GreaterOrEqual(t, id, last)
				last = id
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, uint64(500), s.currentID())
}
