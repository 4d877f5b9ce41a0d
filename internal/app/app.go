// Package app wires config, settings, logging, transport and delivery
// together for the command line.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"telegrama/internal/config"
	"telegrama/internal/delivery"
	"telegrama/internal/eventbus"
	"telegrama/internal/metrics"
	"telegrama/internal/runtime/supervisor"
	"telegrama/internal/settings"
	"telegrama/internal/transport"
	"telegrama/internal/transport/telegram"
	logx "telegrama/pkg/logx"
)

// maxLineBytes bounds one pipe-mode message.
const maxLineBytes = 1 << 20

// Options configures New.
type Options struct {
	// ConfigPath is the config file. Empty means defaults plus environment.
	ConfigPath string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	logs *logx.Service
	log  logx.Logger

	store     *settings.Store
	bus       eventbus.Bus
	reg       *prometheus.Registry
	metrics   *metrics.Delivery
	mserver   *metrics.Server
	deliverer *delivery.Deliverer
}

// New loads the configuration and builds the delivery stack. Settings read
// from a config file are validated; without a file only Send checks for the
// bot token and chat id.
func New(opts Options) (*App, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	var (
		cfgm *config.Manager
		cfg  *config.Config
	)
	if strings.TrimSpace(opts.ConfigPath) != "" {
		cfgm = config.NewManager(opts.ConfigPath)
		cfgm.SetEnv(getenv)
		c, err := cfgm.Load()
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = &config.Config{Logging: config.LoggingConfig{Level: "warn", Console: true}}
		cfg.ApplyEnv(getenv)
	}

	s, err := cfg.ToSettings()
	if err != nil {
		return nil, err
	}
	if cfgm != nil {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", opts.ConfigPath, err)
		}
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	if cfgm != nil {
		cfgm.SetLogger(log.With(logx.String("comp", "config")))
	}

	store := settings.NewStore(s)
	bus := eventbus.New()
	reg := prometheus.NewRegistry()
	m := metrics.NewDelivery(reg)

	d := delivery.New(store, newTransport(s.Client, log), log)
	d.SetEventBus(bus)
	d.SetMetrics(m)

	log.Debug("settings loaded", logx.Any("settings", s.Redacted()))

	return &App{
		cfgm:      cfgm,
		cfg:       cfg,
		logs:      logSvc,
		log:       log.With(logx.String("comp", "app")),
		store:     store,
		bus:       bus,
		reg:       reg,
		metrics:   m,
		mserver:   metrics.NewServer(reg, log),
		deliverer: d,
	}, nil
}

func newTransport(opts settings.ClientOptions, log logx.Logger) transport.Transport {
	if opts.Driver == settings.DriverTelebot {
		return telegram.NewBotClient(opts, log)
	}
	return telegram.NewHTTPClient(opts, log)
}

// Settings returns a snapshot of the current settings.
func (a *App) Settings() settings.Settings { return a.store.Snapshot() }

// Send delivers one message.
func (a *App) Send(ctx context.Context, message string, opts ...delivery.Option) (delivery.Outcome, error) {
	out, err := a.deliverer.Send(ctx, message, opts...)
	if err != nil {
		a.log.Warn("send failed", logx.Err(err), logx.Int("attempts", out.Attempts))
		return out, err
	}
	a.log.Info("message sent", logx.String("dialect", out.Dialect.String()), logx.Int("attempts", out.Attempts))
	return out, nil
}

// Pipe sends every non-empty line of r as its own message, one at a time,
// until r is exhausted or ctx is done. While it runs the config file is
// watched and the metrics endpoint (if configured) is served.
//
// A failed line is logged and does not stop the loop; the returned error
// reports how many lines failed.
func (a *App) Pipe(ctx context.Context, r io.Reader, opts ...delivery.Option) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Stop(stopCtx)
		a.mserver.Stop(stopCtx)
	}()

	if err := a.mserver.Apply(sup.Context(), strings.TrimSpace(a.cfg.Metrics.Addr)); err != nil {
		a.log.Warn("metrics endpoint disabled", logx.Err(err))
	}
	a.startEventLog(sup)
	if a.cfgm != nil {
		a.startConfigReload(sup)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-sup.Context().Done():
				readErr <- nil
				return
			}
		}
		readErr <- sc.Err()
	}()

	var sent, failed int
	for {
		select {
		case <-ctx.Done():
			a.log.Info("pipe stopped", logx.Int("sent", sent), logx.Int("failed", failed))
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				a.log.Info("pipe finished", logx.Int("sent", sent), logx.Int("failed", failed))
				if err := <-readErr; err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d messages failed", failed, sent+failed)
				}
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := a.Send(ctx, line, opts...); err != nil {
				if errors.Is(err, delivery.ErrConfiguration) {
					return err
				}
				failed++
				continue
			}
			sent++
		}
	}
}

func (a *App) startEventLog(sup *supervisor.Supervisor) {
	events, unsub := a.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})
}

func (a *App) startConfigReload(sup *supervisor.Supervisor) {
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})
	sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, newCfg)
			}
		}
	})
}

// applyConfig swaps in a reloaded (already validated) config.
func (a *App) applyConfig(ctx context.Context, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(a.cfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)

	s, err := newCfg.ToSettings()
	if err != nil {
		a.log.Warn("invalid config; keeping previous settings", logx.Err(err))
		return
	}
	a.store.Replace(s)
	a.logs.Apply(newCfg.Logging.Logx())
	if err := a.mserver.Apply(ctx, strings.TrimSpace(newCfg.Metrics.Addr)); err != nil {
		a.log.Warn("metrics endpoint disabled", logx.Err(err))
	}
	for _, sec := range sections {
		if sec == "client" {
			a.log.Warn("client config changed; restart required for transport changes to take effect")
			break
		}
	}
	a.cfg = newCfg
}

// Close flushes and closes log sinks.
func (a *App) Close() error {
	a.mserver.Stop(context.Background())
	return a.logs.Close()
}

// Check loads and validates the config file without sending anything.
// The returned settings are redacted.
func Check(path string, getenv func(string) string) (settings.Settings, error) {
	m := config.NewManager(path)
	if getenv != nil {
		m.SetEnv(getenv)
	}
	cfg, err := m.Parse()
	if err != nil {
		return settings.Settings{}, err
	}
	s, err := cfg.ToSettings()
	if err != nil {
		return settings.Settings{}, err
	}
	return s.Redacted(), s.Validate()
}
