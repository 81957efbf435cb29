package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ssrpwm/core"
	"ssrpwm/drivers/pcf8574"
	"ssrpwm/host/config"
	"ssrpwm/host/events"
	"ssrpwm/host/logging"
	"ssrpwm/host/metrics"
	"ssrpwm/host/runtime"
	"ssrpwm/host/serial"
	"ssrpwm/host/server"
	"ssrpwm/host/sim"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller",
	Long: `Runs the relay sequencer on this host. Commands arrive on the serial
device (if configured) and on the HTTP API.`,
	RunE: runServe,
}

func init() {
	config.RegisterFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.BridgeDebug(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newController(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Run(ctx)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// controller wires the sequencer to its inputs and observers
type controller struct {
	cfg     *config.Config
	log     zerolog.Logger
	rt      *runtime.Runtime
	bus     *events.Bus
	metrics *metrics.Metrics
	port    serial.Port
}

func newController(cfg *config.Config, log zerolog.Logger) (*controller, error) {
	driver, err := newDriver(cfg)
	if err != nil {
		return nil, err
	}
	board, err := core.NewRelayBoard(driver, cfg.RelayBoard())
	if err != nil {
		return nil, err
	}
	seq := core.NewSequencer(board, core.NewScheduler(0))

	c := &controller{
		cfg:     cfg,
		log:     log,
		bus:     events.New(),
		metrics: metrics.New(),
	}
	c.metrics.InitRelays(board.RelayCount())
	seq.SetObserver(core.Observers{
		c.metrics,
		events.NewObserver(c.bus, nil),
		logging.NewObserver(log, cfg.Runtime.LogRatePerSec),
	})

	var output io.Writer = io.Discard
	if cfg.Serial.Device != "" {
		c.port, err = serial.Open(&serial.Config{
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.Serial.ReadTimeoutMS,
		})
		if err != nil {
			return nil, err
		}
		output = c.port
	}

	c.rt = runtime.New(seq, runtime.Config{
		Tick:          time.Duration(cfg.Runtime.TickMS) * time.Millisecond,
		Output:        output,
		Logger:        log,
		LogRatePerSec: cfg.Runtime.LogRatePerSec,
		OnLineFailed:  c.metrics.LineFailed,
	})

	log.Info().
		Str("driver", cfg.Board.Driver).
		Int("relays", board.RelayCount()).
		Str("device", cfg.Serial.Device).
		Msg("controller ready")
	return c, nil
}

// newDriver selects the relay output driver. Host builds have no GPIO
// access, so both drivers run against simulated hardware.
func newDriver(cfg *config.Config) (core.RelayDriver, error) {
	switch cfg.Board.Driver {
	case config.DriverGPIO:
		return sim.NewDriver(cfg.RelayBoard().HighFreqPins), nil
	case config.DriverPCF8574:
		bus := sim.NewExpander(cfg.Board.I2CAddress)
		return pcf8574.New(bus, pcf8574.Config{Address: cfg.Board.I2CAddress}), nil
	default:
		return nil, fmt.Errorf("unknown relay driver %q", cfg.Board.Driver)
	}
}

// Run serves until ctx is done or an input fails
func (c *controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	start("runtime", c.rt.Run)
	if c.port != nil {
		start("serial", func(ctx context.Context) error {
			return c.rt.ReadFrom(ctx, c.port)
		})
	}
	if c.cfg.HTTP.Listen != "" {
		srv := server.New(c.rt, c.bus, c.metrics.Handler(), c.log)
		start("http", func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, c.cfg.HTTP.Listen)
		})
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		c.log.Warn().Err(err).Msg("systemd notify failed")
	} else if ok {
		c.log.Debug().Msg("notified systemd")
	}

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	c.log.Info().Msg("shutting down")
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the serial port
func (c *controller) Close() error {
	if c.port == nil {
		return nil
	}
	return c.port.Close()
}
