package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/airscout/internal/config"
	"github.com/muurk/airscout/internal/logging"
	"github.com/muurk/airscout/internal/server"
	"github.com/muurk/airscout/internal/sink"
)

// Serve command flags
var (
	serveHost   string
	servePort   int
	serveMQTT   bool
	serveInflux bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run discovery as a service with an HTTP API",
	Long: `Run discovery continuously and serve the device list over HTTP.

Endpoints:
  GET  /api/devices                 current snapshot
  GET  /api/devices/{name}          one device
  POST /api/devices/{name}/resolve  request a new resolve
  POST /api/devices/{name}/refresh  request a new reading
  GET  /ws                          snapshot stream (WebSocket)
  GET  /metrics                     Prometheus metrics

New readings can also be forwarded to an MQTT broker and to InfluxDB when
enabled in the config file or with --mqtt / --influx. Credentials are read
from AIRSCOUT_MQTT_PASSWORD and AIRSCOUT_INFLUX_TOKEN.`,
	Example: `  # Serve on the configured address (default 127.0.0.1:8080)
  airscout serve

  # Listen on all interfaces and publish to MQTT
  airscout serve --host 0.0.0.0 --mqtt --log-level info`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	serveCmd.Flags().BoolVar(&serveMQTT, "mqtt", false, "Publish readings to the configured MQTT broker")
	serveCmd.Flags().BoolVar(&serveInflux, "influx", false, "Write readings to the configured InfluxDB bucket")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if logLevel == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		// Services log at info unless told otherwise
		if err := logging.Initialize("info"); err != nil {
			return err
		}
	}

	reg, err := loadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	prefs, err := preferences(cmd, reg)
	if err != nil {
		return err
	}

	srvPrefs := config.ServerPrefs{}
	if prefs.Server != nil {
		srvPrefs = *prefs.Server
	}
	if cmd.Flags().Changed("host") {
		srvPrefs.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		srvPrefs.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := openSinks(ctx, prefs)
	if err != nil {
		return err
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sess := newSession(reg, prefs, metrics, sinks...)
	sess.start(ctx)

	srvConfig := &server.Config{Host: srvPrefs.Host, Port: srvPrefs.Port}
	srv := server.New(srvConfig, sess.coordinator, metrics)

	logging.Info("Starting airscout service",
		zap.String("addr", srvConfig.Addr()),
		zap.String("service_type", prefs.ServiceType),
		zap.Int("sinks", len(sinks)),
	)

	serveErr := srv.Start(ctx)
	stop()

	if err := sess.stop(); err != nil {
		logging.Error("Discovery ended with an error", zap.Error(err))
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

// openSinks connects the publishing sinks enabled by config or flags
func openSinks(ctx context.Context, prefs *config.Preferences) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if m := prefs.MQTT; m != nil && (m.Enabled || serveMQTT) {
		mq, err := sink.NewMQTT(ctx, sink.MQTTConfig{
			Broker:      m.Broker,
			ClientID:    m.ClientID,
			Username:    m.Username,
			Password:    os.Getenv(config.MQTTPasswordEnvVar),
			TopicPrefix: m.TopicPrefix,
			QoS:         m.QoS,
			Retained:    m.Retained,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", m.Broker, err)
		}
		sinks = append(sinks, mq)
	}

	if in := prefs.Influx; in != nil && (in.Enabled || serveInflux) {
		influx, err := sink.NewInflux(sink.InfluxConfig{
			URL:         in.URL,
			Token:       os.Getenv(config.InfluxTokenEnvVar),
			Org:         in.Org,
			Bucket:      in.Bucket,
			Measurement: in.Measurement,
		})
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, fmt.Errorf("failed to set up InfluxDB: %w", err)
		}
		sinks = append(sinks, influx)
	}

	return sinks, nil
}
