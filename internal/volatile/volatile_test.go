package volatile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	value := NewValue(1)
	require.Equal(t, 1, value.Load())

	value.Store(2)
	require.Equal(t, 2, value.Load())
}

func TestValueConcurrentAccess(t *testing.T) {
	type config struct{ audio, video bool }
	value := NewValue(config{audio: true, video: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				current := value.Load()
				value.Store(config{audio: !current.audio, video: current.video})
			}
		}()
	}
	wg.Wait()

	require.True(t, value.Load().video)
}
