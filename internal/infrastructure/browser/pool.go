package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"golang.org/x/sync/semaphore"
)

// pool caps the number of live browser processes.
type pool struct {
	sem  *semaphore.Weighted
	wait time.Duration
}

func newPool(size int64, wait time.Duration) *pool {
	if size <= 0 {
		size = 1
	}
	return &pool{sem: semaphore.NewWeighted(size), wait: wait}
}

// acquire waits at most p.wait for a free slot. The returned release func
// may be called any number of times.
func (p *pool) acquire(ctx context.Context) (func(), error) {
	if p.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.wait)
		defer cancel()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrSessionPoolFull, err)
	}
	var once sync.Once
	return func() { once.Do(func() { p.sem.Release(1) }) }, nil
}
