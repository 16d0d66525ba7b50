package latest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_PutReplaces(t *testing.T) {
	m := New[int]()

	m.Put(1)
	m.Put(2)
	m.Put(3)
	assert.True(t, m.Pending())

	v, ok := m.TryGet()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = m.TryGet()
	assert.False(t, ok)
}

func TestMailbox_NeverMoreThanOne(t *testing.T) {
	m := New[int]()
	for i := 0; i < 1000; i++ {
		m.Put(i)
		assert.LessOrEqual(t, len(m.ch), 1)
	}
	v, _ := m.TryGet()
	assert.Equal(t, 999, v)
}

func TestMailbox_GetTimeout(t *testing.T) {
	m := New[string]()

	start := time.Now()
	_, err := m.Get(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMailbox_GetWaits(t *testing.T) {
	m := New[string]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Put("reading")
	}()

	v, err := m.Get(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "reading", v)
}

func TestMailbox_GetCancelled(t *testing.T) {
	m := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Get(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMailbox_Clear(t *testing.T) {
	m := New[int]()
	m.Put(7)
	m.Clear()
	assert.False(t, m.Pending())
	m.Clear()
}

func TestMailbox_ConcurrentConsumer(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	wg.Add(1)

	last := -1
	go func() {
		defer wg.Done()
		for {
			v, err := m.Get(context.Background(), 50*time.Millisecond)
			if err != nil {
				return
			}
			assert.Greater(t, v, last)
			last = v
		}
	}()

	for i := 0; i < 500; i++ {
		m.Put(i)
	}
	wg.Wait()
	assert.Equal(t, 499, last)
}
