package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeFansInAllSources(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan int, 1)
	b := make(chan int, 1)
	merged := Merge(ctx, a, b)

	a <- 1
	b <- 2

	got := make(map[int]bool)
	for i := 0; i < 2; i++ {
		select {
		case v := <-merged:
			got[v] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged value")
		}
	}
	assert.True(t, got[1])
	assert.True(t, got[2])
}

func TestMergeClosesWhenAllSourcesClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan int)
	b := make(chan int)
	merged := Merge(ctx, a, b)

	close(a)
	close(b)

	select {
	case _, ok := <-merged:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("merged channel never closed")
	}
}

func TestMergeClosesOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := make(chan int)
	merged := Merge(ctx, a)

	cancel()

	select {
	case _, ok := <-merged:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("merged channel never closed after cancel")
	}
}

func TestMergeWithNoSourcesBlocksUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	merged := Merge[int](ctx)

	select {
	case <-merged:
		t.Fatal("unexpected value from empty merge")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case _, ok := <-merged:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("merged channel never closed after cancel")
	}
}
