package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"mfphub/internal/config"
	"mfphub/internal/copier"
	"mfphub/internal/discovery"
	"mfphub/internal/escl"
	"mfphub/internal/ews"
	"mfphub/internal/ipp"
	"mfphub/internal/printflow"
	"mfphub/internal/status"
	"mfphub/internal/webui"
)

func main() {
	logLevel := parseLogLevel(envStr("MFPHUB_LOG_LEVEL", "info"))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	deviceHost := os.Getenv("MFPHUB_DEVICE_IP")
	listenPort := envInt("MFPHUB_LISTEN_PORT", 8080)
	userName := envStr("MFPHUB_USER", "mfphub")
	dataDir := os.Getenv("MFPHUB_DATA_DIR")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Discover the device if no address is configured
	if deviceHost == "" {
		slog.Info("discovering device...")
		host, err := discovery.FindDevice(ctx, 30*time.Second)
		if err != nil {
			slog.Error("device discovery failed; set MFPHUB_DEVICE_IP", "err", err)
			os.Exit(1)
		}
		deviceHost = host
	}
	slog.Info("using device", "host", deviceHost)

	var settings *config.Store
	if dataDir != "" {
		var err error
		settings, err = config.NewStore(dataDir)
		if err != nil {
			slog.Error("settings store init failed", "dir", dataDir, "err", err)
			os.Exit(1)
		}
	} else {
		settings = config.NewMemoryStore()
	}

	telemetry := ews.NewClient(deviceHost)
	scanner := escl.NewClient(deviceHost)
	printer := ipp.NewClient(deviceHost, userName)

	flow := printflow.NewController(printer)
	flow.OnComplete = func(file printflow.File, totalPages int, colorMode string) {
		slog.Info("print job complete", "file", file.Name, "pages", totalPages, "colorMode", colorMode)
	}
	flow.OnError = func(file printflow.File, message string) {
		slog.Warn("print job failed", "file", file.Name, "message", message)
	}

	cop := copier.New(scanner, printer)

	agg := status.New(telemetry, scanner)
	go agg.Run(ctx)

	// Log the device identity once at startup; it never changes
	if info, err := telemetry.DeviceInfo(ctx); err == nil {
		slog.Info("device identified", "model", info.Model, "serial", info.Serial, "firmware", info.Firmware)
	} else {
		slog.Warn("device info fetch failed", "err", err)
	}

	addr := fmt.Sprintf(":%d", listenPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: logMiddleware(webui.NewHandler(agg, flow, cop, scanner, telemetry, settings, deviceHost)),
	}

	go func() {
		slog.Info("server starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}

	slog.Info("shutdown complete")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// responseRecorder captures the status code for logging.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
