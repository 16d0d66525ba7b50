package sensor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu    sync.Mutex
	steps []error
	n     int
}

func (s *scriptedSource) NextReading(ctx context.Context, timeout time.Duration) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n >= len(s.steps) {
		return Reading{}, context.Canceled
	}
	err := s.steps[s.n]
	s.n++
	if err != nil {
		return Reading{}, err
	}
	return Reading{SampleCount: uint16(s.n)}, nil
}

func TestStream(t *testing.T) {
	src := &scriptedSource{steps: []error{nil, ErrTimeout, nil, ErrTimeout, nil}}

	var got []uint16
	for r := range Stream(context.Background(), src, time.Millisecond, 8) {
		got = append(got, r.SampleCount)
	}
	assert.Equal(t, []uint16{1, 3, 5}, got)
}

func TestStream_StopsOnCancel(t *testing.T) {
	f := newFixture(t, constant(10))
	f.run(t, ModeNormal)

	ctx, cancel := context.WithCancel(context.Background())
	ch := Stream(ctx, f.ctrl, 50*time.Millisecond, 1)

	f.mock.Sample(time.Unix(1, 0))
	select {
	case r := <-ch:
		assert.Equal(t, time.Unix(1, 0), r.At)
	case <-time.After(time.Second):
		require.Fail(t, "no reading streamed")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
