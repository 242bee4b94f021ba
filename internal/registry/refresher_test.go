package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type flakyLoader struct {
	calls int
}

func (l *flakyLoader) Load(context.Context) (map[string]*Application, error) {
	l.calls++
	if l.calls%2 == 0 {
		return nil, errors.New("registry store down")
	}
	return map[string]*Application{
		"1": {ID: "1", Token: "token"},
	}, nil
}

func TestLoadOnce(t *testing.T) {
	r := New(Options{}, zaptest.NewLogger(t))
	loader := &flakyLoader{}

	refresher := NewRefresher(r, loader, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, refresher.LoadOnce(context.Background()))
	assert.Equal(t, 1, r.Len())

	// Second call fails; the registry keeps what it has.
	assert.Error(t, refresher.LoadOnce(context.Background()))
	assert.Equal(t, 1, r.Len())
}

func TestRunKeepsStaleSetOnFailure(t *testing.T) {
	r := New(Options{}, zaptest.NewLogger(t))
	loader := &flakyLoader{calls: 1} // next load fails

	refresher := NewRefresher(r, loader, 5*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		refresher.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return r.Len() == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}
