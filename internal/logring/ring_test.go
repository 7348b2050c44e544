package logring

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailReturnsNewestLinesInOrder(t *testing.T) {
	buf := New(5)
	for i := 1; i <= 3; i++ {
		buf.Append(fmt.Sprintf("line %d", i))
	}

	assert.Equal(t, []string{"line 2", "line 3"}, buf.Tail(2))
	assert.Equal(t, []string{"line 1", "line 2", "line 3"}, buf.Tail(10))
}

func TestOverflowEvictsOldest(t *testing.T) {
	buf := New(3)
	for i := 1; i <= 7; i++ {
		buf.Append(fmt.Sprintf("line %d", i))
	}

	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, []string{"line 5", "line 6", "line 7"}, buf.Tail(3))
}

func TestCapacityBoundsMemory(t *testing.T) {
	buf := New(64)
	for i := 0; i < 10_000; i++ {
		buf.Append("spam")
	}
	assert.Equal(t, 64, buf.Len())
	assert.Len(t, buf.Tail(1000), 64)
}

func TestReset(t *testing.T) {
	buf := New(4)
	buf.Append("old run output")
	buf.Reset()

	assert.Zero(t, buf.Len())
	assert.Nil(t, buf.Tail(4))

	buf.Append("new run output")
	assert.Equal(t, []string{"new run output"}, buf.Tail(4))
}

func TestTailSnapshotIsIndependent(t *testing.T) {
	buf := New(4)
	buf.Append("a")
	snapshot := buf.Tail(4)
	buf.Append("b")
	buf.Append("c")

	require.Equal(t, []string{"a"}, snapshot)
}

func TestConcurrentAppendAndTail(t *testing.T) {
	buf := New(32)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			buf.Append(fmt.Sprintf("line %d", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			lines := buf.Tail(8)
			assert.LessOrEqual(t, len(lines), 8)
		}
	}()
	wg.Wait()

	assert.Equal(t, 32, buf.Len())
}
