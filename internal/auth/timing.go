package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// TimingConfig sets the floor for failed credential checks
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration
}

// TimingDelay pads failed logins so unknown accounts, wrong passwords and
// wrong second-factor codes take about the same time
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// WaitFrom sleeps until at least base+jitter has elapsed since start, or
// until ctx is done
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	target := td.config.BaseDelay + td.jitter()
	remaining := target - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (td *TimingDelay) jitter() time.Duration {
	if td.config.RandomDelay <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(td.config.RandomDelay)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
