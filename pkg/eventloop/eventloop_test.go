package eventloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLaterFIFO(t *testing.T) {
	l := New()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		l.CallLater(func() {
			got = append(got, i)
			if i == 9 {
				l.Exit(0)
			}
		})
	}

	require.Equal(t, 0, l.Exec())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestCallLaterFromOtherGoroutine(t *testing.T) {
	l := New()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			i := i
			l.CallLater(func() {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			})
		}
		l.CallLater(func() { l.Exit(7) })
	}()

	code := l.Exec()
	wg.Wait()

	assert.Equal(t, 7, code)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestExecTimeout(t *testing.T) {
	l := New()
	l.Timeout(50 * time.Millisecond)

	start := time.Now()
	code := l.Exec()

	assert.Equal(t, 0, code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestExitDropsPending(t *testing.T) {
	l := New()

	ran := 0
	l.CallLater(func() {
		ran++
		l.Exit(1)
	})
	l.CallLater(func() { ran++ })

	assert.Equal(t, 1, l.Exec())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, l.Pending())
}
