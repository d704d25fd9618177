// Package wait provides the bounded poll loop used while the remote UI
// settles after an action.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/utils"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	. "github.com/roelfdiedericks/gopuppet/internal/metrics"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Options bound a poll loop. Zero fields take the defaults.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Condition reports whether the awaited state has been reached. A non-nil
// error aborts the wait immediately.
type Condition func(ctx context.Context) (bool, error)

// Until polls cond until it returns true, returns an error, or the timeout
// expires. Expiry yields base.ErrTimeout naming what was awaited.
func Until(ctx context.Context, opts Options, what string, cond Condition) error {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	sleeper := utils.BackoffSleeper(opts.Interval, 4*opts.Interval, nil)
	polls := 0

	err := utils.Retry(ctx, sleeper, func() (bool, error) {
		polls++
		ok, err := cond(ctx)
		if err != nil {
			return true, err
		}
		return ok, nil
	})

	MetricAdd("wait", "polls", int64(polls))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		MetricInc("wait", "timeouts")
		return fmt.Errorf("%w after %s waiting for %s", base.ErrTimeout, opts.Timeout, what)
	}
	return err
}
