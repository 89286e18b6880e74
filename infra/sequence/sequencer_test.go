package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsDenseAndOrdered(t *testing.T) {
	s := New(0)
	assert.Equal(t, uint64(1), s.Next())
	assert.Equal(t, uint64(2), s.Next())
	assert.Equal(t, uint64(2), s.Current())
}

func TestBumpNeverMovesBackward(t *testing.T) {
	s := New(10)
	s.Bump(5)
	assert.Equal(t, uint64(10), s.Current())
	s.Bump(40)
	assert.Equal(t, uint64(40), s.Current())
}

func TestConcurrentNextIsUnique(t *testing.T) {
	s := New(0)
	const workers, per = 8, 1000

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				v := s.Next()
				mu.Lock()
				assert.False(t, seen[v])
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(workers*per), s.Current())
}
