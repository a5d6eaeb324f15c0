// Command edgemq keeps a device connected to an MQTT broker, logs the
// messages on the configured topics and reports its uptime.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/gonzalop/edgemq"
	"github.com/gonzalop/edgemq/internal/config"
	"github.com/gonzalop/edgemq/internal/logging"
)

var version = "dev"

func main() {
	fs := pflag.NewFlagSet("edgemq", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", os.Getenv("EDGEMQ_CONFIG"), "path to the YAML configuration file")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.ApplyFlags(fs)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "edgemq: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.Logging, version)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("edgemq failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("starting edgemq",
		"server", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", client.ClientID())

	for _, sub := range cfg.Subscriptions {
		if err := client.Subscribe(sub.Topic, edgemq.QoS(sub.QoS), logMessage(logger)); err != nil {
			return fmt.Errorf("subscribe %q: %w", sub.Topic, err)
		}
	}

	if cfg.Metrics.Listen != "" {
		srv := metricsServer(cfg.Metrics, client)
		go func() {
			logger.Info("metrics server listening", "address", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(runCtx) }()

	started := time.Now()
	if cfg.Notifier.UptimeInterval > 0 {
		notifier := edgemq.NewNotifier(client, edgemq.NotifierConfig{
			FailureThreshold: uint32(cfg.Notifier.FailureThreshold),
			ResetTimeout:     time.Duration(cfg.Notifier.ResetTimeout) * time.Second,
			Rate:             cfg.Notifier.RateLimit,
			Burst:            cfg.Notifier.Burst,
		})
		go reportUptime(runCtx, notifier, started, time.Duration(cfg.Notifier.UptimeInterval)*time.Second, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down", "uptime", time.Since(started).Round(time.Second))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if client.IsConnected() {
		if err := client.Disconnect(shutdownCtx); err != nil {
			logger.Warn("disconnect failed", "error", err)
		}
	}

	cancel()
	<-done
	return nil
}

// newClient builds the client from the broker section of cfg.
func newClient(cfg *config.Config, logger *slog.Logger) (*edgemq.Client, error) {
	id := cfg.Broker.ClientID
	if id == "" {
		id = deriveClientID(os.Hostname)
	}

	settings := edgemq.Settings{
		Host:      cfg.Broker.Host,
		Port:      cfg.Broker.Port,
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
		KeepAlive: time.Duration(cfg.Broker.KeepAlive) * time.Second,
		ClientID:  id,
		Will: &edgemq.Will{
			Topic:   statusTopic(id),
			Payload: []byte("offline"),
			QoS:     edgemq.AtLeastOnce,
			Retain:  true,
		},
	}

	opts := []edgemq.Option{
		edgemq.WithLogger(logger),
		edgemq.WithConnectTimeout(time.Duration(cfg.Broker.ConnectTimeout) * time.Second),
		edgemq.WithWildcardDispatch(cfg.Broker.WildcardDispatch),
		edgemq.WithHandlerInterceptor(warnSlowHandlers(logger, slowHandler)),
		edgemq.WithOnConnect(func(c *edgemq.Client) {
			if err := c.Publish(statusTopic(c.ClientID()), []byte("online"), edgemq.AtLeastOnce, true); err != nil {
				logger.Warn("failed to publish status", "error", err)
			}
		}),
		edgemq.WithOnConnectionLost(func(c *edgemq.Client, err error) {
			logger.Warn("connection lost", "error", err)
		}),
	}
	if ws := cfg.Broker.WebSocket; ws.Enabled {
		opts = append(opts, edgemq.WithDialer(&edgemq.WebSocketDialer{Secure: ws.Secure, Path: ws.Path}))
	}

	return edgemq.New(settings, opts...)
}

// deriveClientID uses the host name, or a random identifier when the host
// name is unavailable.
func deriveClientID(hostname func() (string, error)) string {
	if name, err := hostname(); err == nil {
		if name = strings.TrimSpace(name); name != "" {
			// Client identifiers must not contain topic separators.
			return strings.NewReplacer("/", "-", "+", "-", "#", "-").Replace(name)
		}
	}
	return "edgemq-" + uuid.NewString()[:8]
}

func statusTopic(clientID string) string {
	return clientID + "/status"
}

func logMessage(logger *slog.Logger) edgemq.MessageHandler {
	return func(_ *edgemq.Client, msg edgemq.Message) {
		logger.Info("message received",
			"topic", msg.Topic,
			"qos", msg.QoS,
			"retained", msg.Retained,
			"payload", string(msg.Payload))
	}
}

// slowHandler is how long a handler may hold the connection goroutine
// before it is reported.
const slowHandler = 500 * time.Millisecond

// warnSlowHandlers logs handlers that take longer than limit. Handlers run
// before the acknowledgement is sent, so a slow one delays the broker.
func warnSlowHandlers(logger *slog.Logger, limit time.Duration) edgemq.HandlerInterceptor {
	return func(next edgemq.MessageHandler) edgemq.MessageHandler {
		return func(c *edgemq.Client, msg edgemq.Message) {
			start := time.Now()
			next(c, msg)
			if elapsed := time.Since(start); elapsed > limit {
				logger.Warn("slow message handler", "topic", msg.Topic, "duration", elapsed)
			}
		}
	}
}

// reportUptime sends the process uptime in seconds every interval.
func reportUptime(ctx context.Context, n *edgemq.Notifier, started time.Time, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uptime := strconv.FormatInt(int64(time.Since(started)/time.Second), 10)
			err := n.Notify(ctx, "uptime", []byte(uptime))
			switch {
			case err == nil:
			case errors.Is(err, edgemq.ErrNotifierSuppressed):
				logger.Debug("uptime notification suppressed")
			default:
				logger.Warn("uptime notification failed", "error", err)
			}
		}
	}
}

func metricsServer(cfg config.MetricsConfig, client *edgemq.Client) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(edgemq.NewCollector(client))

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
