// Command freedcc runs a DCC command station: it reads locomotive
// and system commands from a serial console, schedules them onto a
// bit-serial track signal, and keeps every tracked locomotive
// refreshed on a cycle.
package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mikey-austin/freedcc/internal/cache"
	"github.com/mikey-austin/freedcc/internal/config"
	"github.com/mikey-austin/freedcc/internal/scheduler"
	"github.com/mikey-austin/freedcc/internal/serialport"
	"github.com/mikey-austin/freedcc/internal/signal"
	"github.com/mikey-austin/freedcc/internal/station"
	"github.com/mikey-austin/freedcc/internal/sysinfo"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "freedcc",
		Short:         "A hosted NMRA DCC command station",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the command station until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), ".", "/etc/freedcc")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runStation(cmd.Context(), cfg)
		},
	}

	defaults := config.Defaults()
	cmd.Flags().String("device", defaults.Device, "serial device for the console and track signal (empty: use a local pty)")
	cmd.Flags().Int("baud_rate", defaults.BaudRate, "console baud rate")
	cmd.Flags().String("log_level", defaults.LogLevel, "log level: debug, info, warn, error")
	cmd.Flags().Duration("tick_period", defaults.TickPeriod, "scheduler transmit-decision interval")
	cmd.Flags().Int("queue_capacity", defaults.QueueCapacity, "scheduler inbound packet queue capacity")
	cmd.Flags().Int("cache_capacity", defaults.CacheCapacity, "refresh cache tracked-address capacity")

	return cmd
}

func runStation(ctx context.Context, cfg config.Config) error {
	log := logrus.StandardLogger()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithError(err).Warn("unrecognized log level, defaulting to info")
	}

	ctx, cancel := ossignal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	console, modOutput, err := openPorts(cfg, log)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	defer console.Close()

	counters := &sysinfo.Counters{}
	refreshCache := cache.New(cfg.CacheCapacity)
	modulator := signal.New(modOutput)
	sched := scheduler.New(modulator, refreshCache, counters, log, cfg.TickPeriod, cfg.QueueCapacity)
	st := station.New(console, sched, refreshCache, counters, log)

	errc := make(chan error, 3)
	go func() { errc <- modulator.Run(ctx) }()
	go func() { errc <- sched.Run(ctx) }()
	go func() { errc <- st.Serve() }()

	log.WithFields(logrus.Fields{
		"device": cfg.Device,
		"baud":   cfg.BaudRate,
	}).Info("station running")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

// openPorts opens the configured serial device, or a development pty
// pair when none is configured, returning the console side (for the
// station's line protocol) and a track-signal output sharing the
// same wire. A real deployment would drive the track signal from a
// dedicated GPIO line; here the console connection doubles as the
// signal.Output so the whole station runs end to end on one device.
func openPorts(cfg config.Config, log *logrus.Logger) (console *serialport.Port, out signal.Output, err error) {
	if cfg.Device == "" {
		log.Info("no device configured, opening a local pty for development")
		master, slave, err := serialport.OpenPTY(nil, nil)
		if err != nil {
			return nil, nil, err
		}
		master.Close()
		return slave, portOutput{slave}, nil
	}

	port, err := serialport.OpenConsole(cfg.Device, baudConst(cfg.BaudRate))
	if err != nil {
		return nil, nil, err
	}
	return port, portOutput{port}, nil
}

func baudConst(rate int) serialport.CFlag {
	switch rate {
	case 19200:
		return serialport.B19200
	case 38400:
		return serialport.B38400
	default:
		return serialport.B9600
	}
}

// portOutput adapts a serialport.Port to signal.Output by writing a
// single byte whose value distinguishes rail polarity. A dedicated
// GPIO-backed Output replaces this on real track hardware.
type portOutput struct {
	port *serialport.Port
}

func (o portOutput) Set(high bool) error {
	b := byte(0)
	if high {
		b = 1
	}
	_, err := o.port.Write([]byte{b})
	return err
}
