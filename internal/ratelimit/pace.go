package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/logging"
)

// Mode selects the soft-pacing delay table.
type Mode string

const (
	// ModeSafe is tuned for free-tier quotas and is the default.
	ModeSafe Mode = "safe"

	// ModeFast reduces every delay to 30% of the safe value.
	ModeFast Mode = "fast"
)

// Operation names a pipeline step with its own pacing delay.
type Operation string

const (
	OpSingleCall      Operation = "single_call"
	OpSummarizerBatch Operation = "summarizer_batch"
	OpDrafter         Operation = "drafter"
	OpVerification    Operation = "verification"
	OpOnError         Operation = "on_error"
)

// safeDelays is the free-tier-safe pacing table, in seconds.
var safeDelays = map[Operation]int{
	OpSingleCall:      90,
	OpSummarizerBatch: 120,
	OpDrafter:         80,
	OpVerification:    70,
	OpOnError:         60,
}

// fastFactor is applied to safe delays in fast mode.
const fastFactor = 0.3

// Pacer applies a short fixed delay between successive calls to the
// throttled resource, independent of window usage, to avoid bursts.
type Pacer struct {
	mode  Mode
	sleep func(ctx context.Context, d time.Duration) error
	log   *logging.Logger
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithPacerSleep overrides the sleeper, for tests.
func WithPacerSleep(sleep func(ctx context.Context, d time.Duration) error) PacerOption {
	return func(p *Pacer) { p.sleep = sleep }
}

// WithPacerLogger sets the logger. Defaults to a no-op logger.
func WithPacerLogger(log *logging.Logger) PacerOption {
	return func(p *Pacer) { p.log = log }
}

// NewPacer creates a pacer in the given mode. Unknown modes fall back
// to safe.
func NewPacer(mode Mode, opts ...PacerOption) *Pacer {
	if mode != ModeFast {
		mode = ModeSafe
	}
	p := &Pacer{
		mode:  mode,
		sleep: sleepCtx,
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Delay returns the pacing delay for op in the pacer's mode.
func (p *Pacer) Delay(op Operation) time.Duration {
	secs, ok := safeDelays[op]
	if !ok {
		secs = 60
	}
	d := time.Duration(secs) * time.Second
	if p.mode == ModeFast {
		d = time.Duration(float64(d) * fastFactor)
	}
	return d
}

// Pace sleeps the delay configured for op, interruptible through ctx.
func (p *Pacer) Pace(ctx context.Context, op Operation) error {
	d := p.Delay(op)
	p.log.Debug(ctx, "pacing", zap.String("operation", string(op)), zap.Duration("delay", d))
	return p.sleep(ctx, d)
}
