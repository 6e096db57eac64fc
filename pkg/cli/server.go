package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	urfave "github.com/urfave/cli/v3"

	"github.com/mchmarny/riskctl/pkg/data"
	"github.com/mchmarny/riskctl/pkg/logging"
	"github.com/mchmarny/riskctl/pkg/risk"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverHostDefault         = "127.0.0.1"
)

var (
	portFlag = &urfave.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen (default: server.port from config)",
	}

	hostFlag = &urfave.StringFlag{
		Name:  "host",
		Usage: "Address on which the server will listen",
		Value: serverHostDefault,
	}

	jsonLogsFlag = &urfave.BoolFlag{
		Name:  "json-logs",
		Usage: "Write server logs as JSON lines",
	}

	serverCmd = &urfave.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Start the risk assessment HTTP API",
		Action:  cmdStartServer,
		Flags: []urfave.Flag{
			portFlag,
			hostFlag,
			jsonLogsFlag,
			modelFlag,
		},
	}
)

func cmdStartServer(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	name := modelName(cmd)

	if cmd.Bool(jsonLogsFlag.Name) {
		slog.SetDefault(logging.NewServerLogger(os.Stderr, cfg.LogLevel))
	}

	port := cfg.Config.Server.Port
	if cmd.IsSet(portFlag.Name) {
		port = cmd.Int(portFlag.Name)
	}
	address := net.JoinHostPort(cmd.String(hostFlag.Name), strconv.Itoa(port))

	e, err := readyEngine(ctx, cfg, name)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := newAPI(e, cfg.DB, name, reg)
	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(a, reg),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	failed := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address), "model", name)

	select {
	case <-done:
	case <-ctx.Done():
	case err := <-failed:
		return fmt.Errorf("starting server: %w", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	return nil
}

func newAPI(e *risk.Engine, db *data.DB, name string, reg prometheus.Registerer) *api {
	a := &api{
		engine:  e,
		db:      db,
		model:   name,
		metrics: newMetrics(reg),
	}
	if m := e.Model(); m != nil {
		a.metrics.published(m.ID)
	}
	return a
}

func makeRouter(a *api, g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+apiHealthPath, healthHandler)
	mux.HandleFunc("POST "+apiAssessPath, a.assessHandler)
	mux.HandleFunc("POST "+apiBulkPath, a.bulkHandler)
	mux.HandleFunc("POST "+apiTrainPath, a.trainHandler)
	mux.HandleFunc("GET "+apiModelsPath, a.modelsHandler)
	mux.HandleFunc("GET "+apiHistoryPath, a.historyHandler)

	mux.Handle("GET "+metricsPath, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return mux
}
