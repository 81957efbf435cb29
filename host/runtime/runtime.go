// Package runtime runs the firmware core on a host. One goroutine owns the
// sequencer: it dispatches scheduler ticks and executes every command, so
// core never sees concurrent access.
package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"ssrpwm/core"
	"ssrpwm/host/logging"
	"ssrpwm/protocol"
)

// ErrStopped is returned by Do once Run has returned
var ErrStopped = errors.New("runtime stopped")

// Config configures a Runtime. Zero values select defaults.
type Config struct {
	// Tick is the dispatch interval. Default 1ms.
	Tick time.Duration
	// Output receives replies to commands arriving through Receive.
	Output io.Writer
	// Clock returns the current scheduler tick. Defaults to milliseconds
	// since New.
	Clock func() uint32
	// Logger receives rejected lines, throttled to LogRatePerSec.
	Logger        zerolog.Logger
	LogRatePerSec int
	// OnLineFailed is told about every line that could not be handled.
	OnLineFailed protocol.ErrorHandler
}

// Status is a snapshot of the sequencer
type Status struct {
	UptimeMS      uint32               `json:"uptime_ms"`
	Relays        []int                `json:"relays"`
	Pwm           []int                `json:"pwm"`
	Patterns      []core.PatternStatus `json:"patterns"`
	PendingEvents int                  `json:"pending_events"`
}

// Runtime is the host firmware loop
type Runtime struct {
	seq       *core.Sequencer
	registry  *core.CommandRegistry
	transport *protocol.Transport
	clock     func() uint32
	tick      time.Duration
	log       zerolog.Logger
	throttle  *logging.Throttled
	onFailed  protocol.ErrorHandler

	work    chan func()
	stopped chan struct{}
}

// New creates a runtime around seq and registers the PWM command set
func New(seq *core.Sequencer, cfg Config) *Runtime {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Millisecond
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.Clock == nil {
		start := time.Now()
		cfg.Clock = func() uint32 {
			return core.TimerFromUS(uint64(time.Since(start).Microseconds()))
		}
	}
	if cfg.OnLineFailed == nil {
		cfg.OnLineFailed = func(string, error) {}
	}

	r := &Runtime{
		seq:      seq,
		registry: core.NewCommandRegistry(),
		clock:    cfg.Clock,
		tick:     cfg.Tick,
		log:      cfg.Logger,
		throttle: logging.NewThrottled(cfg.Logger, cfg.LogRatePerSec),
		onFailed: cfg.OnLineFailed,
		work:     make(chan func()),
		stopped:  make(chan struct{}),
	}
	core.InitPwmCommands(r.registry, seq)

	r.transport = protocol.NewTransport(cfg.Output, r.registry.DispatchRequest)
	r.transport.SetErrorHandler(r.lineFailed)

	core.SetTime(r.clock())
	core.TimerInit()
	return r
}

// Registry returns the command registry
func (r *Runtime) Registry() *core.CommandRegistry {
	return r.registry
}

// Run dispatches the scheduler every tick and executes submitted work
// until ctx is done. On return every relay is open.
func (r *Runtime) Run(ctx context.Context) error {
	defer close(r.stopped)

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.log.Info().
		Int("relays", r.seq.Board().RelayCount()).
		Dur("tick", r.tick).
		Msg("runtime started")

	for {
		select {
		case <-ctx.Done():
			r.seq.StopAllPwm()
			r.log.Info().Msg("runtime stopped, all relays open")
			return nil
		case <-ticker.C:
			r.dispatch()
		case fn := <-r.work:
			r.dispatch()
			fn()
		}
	}
}

// dispatch brings the scheduler up to the current tick
func (r *Runtime) dispatch() {
	now := r.clock()
	core.SetTime(now)
	r.seq.Scheduler().Dispatch(now)
}

// Do runs fn on the loop goroutine and waits for it to finish
func (r *Runtime) Do(ctx context.Context, fn func(seq *core.Sequencer)) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn(r.seq)
	}

	select {
	case r.work <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}

	<-done
	return nil
}

// Receive feeds stream data to the line transport. Complete lines are
// executed on the loop; replies go to the configured output.
func (r *Runtime) Receive(ctx context.Context, data []byte) error {
	return r.Do(ctx, func(*core.Sequencer) {
		r.transport.Receive(data)
	})
}

// Exec executes a single command line and returns its reply
func (r *Runtime) Exec(ctx context.Context, line string) (string, error) {
	req, err := protocol.ParseLine(line)
	if err != nil {
		r.lineFailed(line, err)
		return "", err
	}

	var reply bytes.Buffer
	var execErr error
	if err := r.Do(ctx, func(*core.Sequencer) {
		execErr = r.registry.DispatchRequest(req, &reply)
	}); err != nil {
		return "", err
	}
	if execErr != nil {
		r.lineFailed(line, execErr)
	}
	return reply.String(), execErr
}

// ReadFrom feeds src to the transport until src is exhausted, a read
// fails or ctx is done. io.EOF ends the stream without error.
func (r *Runtime) ReadFrom(ctx context.Context, src io.Reader) error {
	buf := make([]byte, protocol.LineMax)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := src.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if rerr := r.Receive(ctx, data); rerr != nil {
				if errors.Is(rerr, ErrStopped) || errors.Is(rerr, context.Canceled) {
					return nil
				}
				return rerr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Status returns a snapshot taken on the loop
func (r *Runtime) Status(ctx context.Context) (Status, error) {
	var st Status
	err := r.Do(ctx, func(seq *core.Sequencer) {
		st = Status{
			UptimeMS:      core.TimerToMS(core.GetUptime()),
			Relays:        toInts(seq.RelaysStatus()),
			Pwm:           toInts(seq.PwmStatus()),
			Patterns:      seq.PatternsStatus(),
			PendingEvents: seq.Scheduler().Pending(),
		}
	})
	return st, err
}

func (r *Runtime) lineFailed(line string, err error) {
	r.onFailed(line, err)
	r.throttle.Warn().Str("line", line).Err(err).Msg("command line rejected")
}

func toInts[T ~uint8](values []T) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
