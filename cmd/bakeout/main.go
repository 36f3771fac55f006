// Command bakeout drives up to four heater tapes through a controlled
// temperature ramp, logging every reading to CSV and publishing status over
// HTTP and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sweeney/bakeout/internal/actuator"
	"github.com/sweeney/bakeout/internal/config"
	"github.com/sweeney/bakeout/internal/csvlog"
	"github.com/sweeney/bakeout/internal/gpio"
	"github.com/sweeney/bakeout/internal/mqtt"
	"github.com/sweeney/bakeout/internal/scheduler"
	"github.com/sweeney/bakeout/internal/status"
	"github.com/sweeney/bakeout/internal/tui"
	"github.com/sweeney/bakeout/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags holds command-line options that override the config file.
type flags struct {
	configPath  string
	chip        string
	broker      string
	topicPrefix string
	httpAddr    string
	outputDir   string
	lockFile    string
	logFile     string
	everyMinute bool
	console     bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "bakeout [temp×4 [rate×4 [ki×4]]]",
		Short: "Multi-zone heater tape bake controller",
		Long: `bakeout ramps up to four heater tapes to their set temperatures at a
controlled rate, one degree at a time, and holds them there.

Positional arguments set the initial set points in tape order: four
temperatures, optionally followed by four rates (degrees C per minute) and
four integral gains.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(f, cmd.Flags().Changed, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "TOML config file")
	fl.StringVar(&f.chip, "chip", "gpiochip0", "GPIO character device")
	fl.StringVar(&f.broker, "broker", "", "MQTT broker address, e.g. tcp://192.168.1.200:1883 (empty disables)")
	fl.StringVar(&f.topicPrefix, "topic-prefix", mqtt.DefaultPrefix, "MQTT topic prefix")
	fl.StringVar(&f.httpAddr, "http", ":8080", "HTTP status address (empty to disable)")
	fl.StringVarP(&f.outputDir, "output-dir", "o", "./plots_data", "directory for CSV temperature logs")
	fl.StringVar(&f.lockFile, "lock-file", "/tmp/bakeout.lock", "lock file guarding the GPIO lines")
	fl.StringVar(&f.logFile, "log-file", "", "write logs here instead of stderr (default <output-dir>/bakeout.log with --tui)")
	fl.BoolVar(&f.everyMinute, "every-minute", false, "store one sample a minute instead of every tick")
	fl.BoolVar(&f.console, "tui", false, "run the interactive terminal console")
	return cmd
}

// buildConfig layers defaults, the config file, changed flags and positional
// arguments, then validates the result.
func buildConfig(f flags, changed func(string) bool, args []string) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
	}

	if changed("broker") {
		cfg.MQTT.Broker = f.broker
	}
	if changed("topic-prefix") {
		cfg.MQTT.TopicPrefix = f.topicPrefix
	}
	if changed("http") {
		cfg.HTTP.Addr = f.httpAddr
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("lock-file") {
		cfg.LockFile = f.lockFile
	}
	if changed("every-minute") {
		cfg.WriteEveryMinute = f.everyMinute
	}

	cfg, err := cfg.ApplyArgs(args)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, f flags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logFile := f.logFile
	if logFile == "" && f.console {
		logFile = filepath.Join(cfg.OutputDir, "bakeout.log")
	}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		lf, err := tea.LogToFile(logFile, "")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer lf.Close()
	}

	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another bakeout is running (lock %s is held)", cfg.LockFile)
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	start := time.Now()

	board, err := gpio.OpenBoard(f.chip, cfg.Zones)
	if err != nil {
		return fmt.Errorf("open gpio: %w", err)
	}
	defer func() {
		if err := board.Close(); err != nil {
			log.Printf("gpio: close: %v", err)
		}
	}()

	sink, err := csvlog.Create(cfg.OutputDir, start)
	if err != nil {
		return fmt.Errorf("open temperature log: %w", err)
	}
	defer sink.Close()

	tracker := status.NewTracker(start, len(cfg.Zones), status.Config{
		RunID:            runID,
		TickPeriodMs:     int64(cfg.TickPeriodMs),
		ActuationPeriodS: cfg.ActuationPeriodS,
		StartupDelayS:    cfg.StartupDelayS,
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTP.Addr,
		LogFile:          sink.Path(),
		Capacity:         cfg.RingBufferCapacity,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	observers := []scheduler.Observer{tracker}
	var (
		publisher mqtt.Publisher
		conn      mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.TopicPrefix, runID)
		if err != nil {
			log.Printf("mqtt: %v, continuing without telemetry", err)
		} else {
			defer rp.Close()
			publisher, conn = rp, rp
			observers = append(observers, mqtt.NewReporter(rp, runID, nil), connWatch{tracker, rp})
		}
	}

	sched, err := scheduler.New(scheduler.Options{
		Config:    cfg,
		Sensors:   sensorsOf(board.Sensors()),
		Outputs:   outputsOf(board.Switches()),
		Sink:      sink,
		Presenter: tracker,
		Observers: observers,
	})
	if err != nil {
		return err
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: run=%s zones=%d log=%s broker=%q", runID, len(cfg.Zones), sink.Path(), cfg.MQTT.Broker)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s := &session{
		sched:      sched,
		tracker:    tracker,
		publisher:  publisher,
		mqttStatus: conn,
		now:        time.Now,
	}
	if !f.console {
		return s.run(ctx, sigCh)
	}
	return runConsole(ctx, s, sched, tracker, sigCh)
}

// runConsole runs the session behind the terminal UI. Quitting the console
// stops the run; the run ending closes the console.
func runConsole(ctx context.Context, s *session, ctl tui.Controller, tracker *status.Tracker, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(ctl, tracker), tea.WithAltScreen())
	done := make(chan error, 1)
	go func() {
		err := s.run(ctx, sig)
		p.Send(tui.DoneMsg{Err: err})
		done <- err
	}()

	_, perr := p.Run()
	cancel()
	err := <-done
	if perr != nil {
		return errors.Join(err, fmt.Errorf("console: %w", perr))
	}
	return err
}

// runner is the part of the scheduler a session drives.
type runner interface {
	Run(ctx context.Context) error
}

// session is one bake run: lifecycle events around the scheduler.
type session struct {
	sched      runner
	tracker    *status.Tracker
	publisher  mqtt.Publisher        // nil when MQTT is off
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is off
	now        func() time.Time
}

// run publishes STARTUP, runs the scheduler until it fails, ctx is cancelled
// or a signal arrives, and publishes how the run ended.
func (s *session) run(ctx context.Context, sig <-chan os.Signal) error {
	s.publishSystem(mqtt.EventStartup, "")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.sched.Run(ctx) }()

	reason := "QUIT"
	var err error
	select {
	case sg := <-sig:
		log.Printf("received %v, shutting down", sg)
		reason = signalName(sg)
		cancel()
		err = <-done
	case err = <-done:
	}

	if err != nil {
		s.tracker.SetFatal(err)
		logFatal(err)
		s.publishSystem(mqtt.EventFatal, err.Error())
		return err
	}
	s.publishSystem(mqtt.EventShutdown, reason)
	return nil
}

func (s *session) publishSystem(event, reason string) {
	if s.publisher == nil {
		return
	}
	if s.mqttStatus != nil {
		s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
	}
	snap := s.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  s.now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	name := strings.ToLower(event)
	if err := s.publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", name, err)
	} else {
		log.Printf("published %s event", name)
	}
}

// logFatal logs every cause of a failed run on its own line.
func logFatal(err error) {
	var ue *scheduler.UnreliableError
	if errors.As(err, &ue) {
		for _, f := range ue.Faults {
			log.Printf("fatal: %v", f)
		}
		return
	}
	log.Printf("fatal: %v", err)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// connWatch mirrors the broker connection state into the tracker each tick.
type connWatch struct {
	tracker *status.Tracker
	conn    mqtt.ConnectionStatus
}

func (c connWatch) Report(scheduler.Report) {
	c.tracker.SetMQTTConnected(c.conn.IsConnected())
}

func sensorsOf(in []gpio.Sensor) []scheduler.Sensor {
	out := make([]scheduler.Sensor, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func outputsOf(in []gpio.Switch) []actuator.Output {
	out := make([]actuator.Output, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
