package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/config"
	"github.com/muurk/airscout/internal/coordinator"
	"github.com/muurk/airscout/internal/discovery"
	"github.com/muurk/airscout/internal/logging"
	"github.com/muurk/airscout/internal/sink"
)

// Global flags
var (
	logLevel       string
	configPath     string
	serviceType    string
	browseInterval time.Duration
	resolveTimeout time.Duration
	fetchTimeout   time.Duration
	noRemember     bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent if unset")
	pf.StringVar(&configPath, "config", "", "Config file (default is the per-user airscout config)")
	pf.StringVar(&serviceType, "service-type", "", "DNS-SD service type to browse (default _http._tcp)")
	pf.DurationVar(&browseInterval, "browse-interval", 0, "Length of one mDNS browse round (default 15s)")
	pf.DurationVar(&resolveTimeout, "resolve-timeout", 0, "Timeout for resolving one sensor (default 10s)")
	pf.DurationVar(&fetchTimeout, "fetch-timeout", 0, "Timeout for reading one sensor (default 10s)")
	pf.BoolVar(&noRemember, "no-remember", false, "Do not record seen sensors in the config file")
}

// loadRegistry reads the config file named by --config, or the default one
func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadRegistryFrom(configPath)
	}
	return config.LoadRegistry()
}

// saveRegistry writes reg back to where loadRegistry read it from
func saveRegistry(reg *config.Registry) error {
	if configPath != "" {
		return reg.SaveTo(configPath)
	}
	return reg.Save()
}

// preferences returns the configured preferences with command line
// overrides applied
func preferences(cmd *cobra.Command, reg *config.Registry) (*config.Preferences, error) {
	prefs := *reg.Preferences
	flags := cmd.Flags()

	if flags.Changed("service-type") {
		prefs.ServiceType = serviceType
	}
	if flags.Changed("browse-interval") {
		prefs.BrowseInterval = browseInterval
	}
	if flags.Changed("resolve-timeout") {
		prefs.ResolveTimeout = resolveTimeout
	}
	if flags.Changed("fetch-timeout") {
		prefs.FetchTimeout = fetchTimeout
	}

	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// session is one running discovery coordinator plus the goroutines that
// consume it
type session struct {
	registry    *config.Registry
	prefs       *config.Preferences
	coordinator *coordinator.Coordinator
	forwarder   *sink.Forwarder

	cancel context.CancelFunc
	group  *errgroup.Group
}

// newSession wires the feed, resolver, fetcher and coordinator for prefs.
// reg may be nil.
func newSession(reg *config.Registry, prefs *config.Preferences, metrics prometheus.Registerer, sinks ...sink.Sink) *session {
	zc := discovery.NewZeroconf()
	zc.Domain = prefs.Domain
	zc.BrowseInterval = prefs.BrowseInterval
	zc.LostAfter = prefs.LostAfter

	client := airrohr.NewClient()
	if prefs.FetchTimeout > 0 {
		client.SetTimeout(prefs.FetchTimeout)
	}

	opts := []coordinator.Option{
		coordinator.WithResolveTimeout(prefs.ResolveTimeout),
		coordinator.WithFetchTimeout(prefs.FetchTimeout),
		coordinator.WithRefreshInterval(prefs.RefreshInterval),
	}
	if metrics != nil {
		opts = append(opts, coordinator.WithMetrics(coordinator.NewMetrics(metrics)))
	}

	if reg != nil && !noRemember {
		sinks = append(sinks, sink.NewRegistry(reg, saveRegistry))
	}

	return &session{
		registry:    reg,
		prefs:       prefs,
		coordinator: coordinator.New(discovery.NewFeed(zc, prefs.ServiceType), zc, client, opts...),
		forwarder:   sink.NewForwarder(sinks...),
	}
}

// start runs the coordinator and the sink forwarder in the background
func (s *session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	updates, unsubscribe := s.coordinator.Subscribe()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer unsubscribe()
		s.forwarder.Run(ctx, updates)
		return nil
	})
	g.Go(func() error {
		if err := s.coordinator.Run(ctx); err != nil {
			logging.Error("Discovery stopped", zap.Error(err))
			return fmt.Errorf("discovery failed: %w", err)
		}
		return nil
	})
	s.group = g
}

// stop ends discovery, waits for the background goroutines and closes the
// sinks. It returns the discovery error, if any.
func (s *session) stop() error {
	var errs []error
	if s.group != nil {
		s.cancel()
		if err := s.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.forwarder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close sinks: %w", err))
	}
	return errors.Join(errs...)
}

// displayNames returns a lookup of remembered nicknames. The map is
// copied so the sinks may keep updating the registry.
func displayNames(reg *config.Registry) func(string) string {
	nicknames := make(map[string]string)
	if reg != nil {
		for name, dev := range reg.Devices {
			if dev != nil && dev.Nickname != "" {
				nicknames[name] = dev.Nickname
			}
		}
	}
	return func(name string) string {
		if nick, ok := nicknames[name]; ok {
			return nick
		}
		return name
	}
}
