package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	ledgerconfig "nftlend/config"
	"nftlend/core/events"
	"nftlend/gateway/config"
	"nftlend/gateway/middleware"
	"nftlend/gateway/routes"
	"nftlend/observability/logging"
	"nftlend/observability/metrics"
	telemetry "nftlend/observability/otel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "loand: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	var ledgerPath string
	var allowInsecureFlag bool
	var devFlag bool
	flag.StringVar(&cfgPath, "config", "", "path to loand YAML configuration")
	flag.StringVar(&ledgerPath, "ledger", "", "override the ledger TOML configuration path")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.BoolVar(&devFlag, "dev", false, "DEV ONLY: mount mint and clock endpoints")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if env := strings.TrimSpace(os.Getenv("LOAND_ENV")); env != "" {
		cfg.Environment = env
	}
	if secret := strings.TrimSpace(os.Getenv("LOAND_JWT_SECRET")); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	if ledgerPath != "" {
		cfg.Ledger = ledgerPath
	}
	cfg.Dev = cfg.Dev || devFlag
	if err := cfg.RequireSecret(); err != nil {
		return err
	}

	configDir := ""
	if strings.TrimSpace(cfgPath) != "" {
		configDir = filepath.Dir(cfgPath)
	}

	var fileSink *logging.FileSink
	if strings.TrimSpace(cfg.Logging.File) != "" {
		fileSink = &logging.FileSink{
			Path:       resolvePath(configDir, cfg.Logging.File),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service: cfg.Observability.ServiceName,
		Env:     cfg.Environment,
		Level:   cfg.Logging.Level,
		File:    fileSink,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	ledgerCfg, err := ledgerconfig.Load(resolvePath(configDir, cfg.Ledger))
	if err != nil {
		return fmt.Errorf("load ledger config: %w", err)
	}
	if cfg.Dev && ledgerCfg.Clock.Mode != ledgerconfig.ClockManual {
		logger.Warn("dev endpoints enabled with a wall clock; clock advance is unavailable")
	}
	emitter := events.Fanout{metrics.Ledger(), logEmitter{logger: logger.With("component", "events")}}
	ledger, err := ledgerCfg.OpenLedger(ledgerCfg.NewClock(), emitter, logger.With("component", "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()
	logger.Info("ledger opened",
		"backend", ledgerCfg.Storage.Backend,
		"path", ledgerCfg.StoragePath(),
		"clock", ledgerCfg.Clock.Mode)

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: cfg.Observability.ServiceName,
		LogRequests: cfg.Observability.LogRequests,
		Enabled:     cfg.Observability.Metrics || cfg.Observability.Tracing,
	}, logger)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        cfg.Auth.Enabled,
		HMACSecret:     cfg.Auth.HMACSecret,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		ScopeClaim:     cfg.Auth.ScopeClaim,
		OptionalPaths:  cfg.Auth.OptionalPaths,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
		ClockSkew:      cfg.Auth.ClockSkew,
	}, logger)
	if cfg.Auth.Enabled {
		logger.Info("authentication enabled",
			"issuer", cfg.Auth.Issuer,
			"audience", cfg.Auth.Audience,
			logging.MaskField("hmac_secret", cfg.Auth.HMACSecret))
	} else {
		logger.Warn("authentication disabled; callers are taken from the " + middleware.CallerHeader + " header")
	}

	rateLimits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, entry := range cfg.RateLimits {
		rateLimits[entry.ID] = middleware.RateLimit{
			RatePerSecond: entry.PerSecond(),
			Burst:         entry.Burst,
		}
	}

	router, err := routes.New(routes.Config{
		Ledger:        ledger,
		Authenticator: auth,
		RateLimiter:   middleware.NewRateLimiter(rateLimits, logger),
		Observability: obs,
		Idempotency: middleware.NewIdempotencyCache(middleware.IdempotencyConfig{
			TTL:        cfg.Idempotency.TTL,
			MaxEntries: cfg.Idempotency.MaxEntries,
		}),
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		Dev:    cfg.Dev,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	handler := http.Handler(router)
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, cfg.Observability.ServiceName)
	}

	tlsConfig, err := buildTLSConfig(configDir, cfg.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}

	allowInsecure := cfg.Security.AllowInsecure || allowInsecureFlag
	if tlsConfig == nil {
		if !allowInsecure && !isLoopbackAddress(cfg.ListenAddress) {
			return fmt.Errorf("TLS certificate and key are required for non-loopback listeners; provide security.tlsCertFile/tlsKeyFile or start with --allow-insecure in dev")
		}
		if allowInsecure && !cfg.IsDevEnv() && !isLoopbackAddress(cfg.ListenAddress) {
			return fmt.Errorf("plaintext mode is restricted to loopback listeners or the dev environment")
		}
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	if tlsConfig != nil {
		server.TLSConfig = tlsConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
		}
		logger.Info("listening", "address", scheme+"://"+listener.Addr().String(), "dev", cfg.Dev)
		var err error
		if tlsConfig != nil {
			err = server.Serve(tls.NewListener(listener, tlsConfig))
		} else {
			err = server.Serve(listener)
		}
		if err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("stopped")
	return nil
}

// telemetryConfig applies the OTEL_EXPORTER_OTLP_* environment over the
// observability section.
func telemetryConfig(cfg config.Config) telemetry.Config {
	obs := cfg.Observability
	endpoint := strings.TrimSpace(obs.Endpoint)
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); value != "" {
		endpoint = value
	}
	headers := obs.Headers
	if value := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); strings.TrimSpace(value) != "" {
		headers = telemetry.ParseHeaders(value)
	}
	insecure := obs.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	// Without a collector the exporters would only log retry failures.
	exporters := endpoint != ""
	return telemetry.Config{
		ServiceName: obs.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     headers,
		Metrics:     obs.Metrics && exporters,
		Traces:      obs.Tracing && exporters,
		SampleRatio: obs.SampleRatio,
	}
}

func buildTLSConfig(baseDir string, sec config.SecurityConfig) (*tls.Config, error) {
	certPath := resolvePath(baseDir, sec.TLSCertFile)
	keyPath := resolvePath(baseDir, sec.TLSKeyFile)
	caPath := resolvePath(baseDir, sec.TLSClientCAFile)
	if certPath == "" && keyPath == "" && caPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must both be provided when enabling TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if caPath != "" {
		data, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("parse client CA file %s", caPath)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

// resolvePath resolves path relative to the configuration directory.
func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
