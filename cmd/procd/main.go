// Command procd is a lightweight process supervisor daemon: it reads a
// YAML configuration describing child programs, supervises each one's
// lifecycle, captures its output, and exposes an HTTP control plane.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oh-project/procd/internal/config"
	"github.com/oh-project/procd/internal/httpapi"
	"github.com/oh-project/procd/internal/httpapi/middleware"
	"github.com/oh-project/procd/internal/logbuf"
	"github.com/oh-project/procd/internal/registry"
	"github.com/oh-project/procd/internal/supervisor"
	"github.com/oh-project/procd/internal/watcher"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

// run returns the process exit code rather than calling os.Exit directly,
// so deferred cleanup (logger sync, server shutdown) always executes.
func run() int {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:           "procd",
		Short:         "A lightweight process supervisor daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath, debug)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "procd.yaml", "path to the YAML configuration file")
	root.Flags().BoolVar(&debug, "debug", false, "enable verbose/development logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "procd:", err)
		return 1
	}
	return 0
}

func runDaemon(configPath string, debug bool) error {
	log, buf := buildLogger(debug)
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("config load failed", zap.Error(err))
		return err
	}

	if err := os.Chdir(cfg.Home); err != nil {
		log.Error("chdir to home failed", zap.String("home", cfg.Home), zap.Error(err))
		return err
	}

	reg := registry.New()
	d := &daemon{reg: reg, cfgByName: make(map[string]config.ProcessConfig), log: log}
	for _, pc := range cfg.Process {
		d.cfgByName[pc.Name] = pc
		sup := supervisor.New(reg, pc, log)
		go sup.Run()
	}

	w := watcher.New(reg, cfg.RestartDelay.Duration(), log)
	go w.Run()

	limiter := middleware.NewFailureLimiter()
	go limiter.Sweep()

	deps := httpapi.Deps{
		Reg: reg,
		Logs: buf,
		Auth: middleware.Credentials{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		},
		Limiter: limiter,
		Starter: d,
		Log:     log,
	}
	httpServer := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(deps), log)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown did not complete cleanly", zap.Error(err))
	}

	return nil
}

// daemon implements httpapi.Starter: POST /api/process/:name/start
// launches a fresh supervisor goroutine for the named config. cfgByName
// is populated once at startup before any reader goroutine exists, so no
// lock is needed for the read-only lookups that follow.
type daemon struct {
	reg       *registry.Registry
	cfgByName map[string]config.ProcessConfig
	log       *zap.Logger
}

func (d *daemon) StartProcess(name string) error {
	pc, ok := d.cfgByName[name]
	if !ok {
		return fmt.Errorf("unknown process %q", name)
	}
	sup := supervisor.New(d.reg, pc, d.log)
	go sup.Run()
	return nil
}

// buildLogger brings up zap: colored development config for interactive
// use, a plainer production encoder otherwise, both fanned out through
// logbuf.Tap so /api/logs serves the same lines.
func buildLogger(debug bool) (*zap.Logger, *logbuf.Buffer) {
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	level := zapcore.InfoLevel

	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg = cfg.EncoderConfig
		enc = zapcore.NewConsoleEncoder(encCfg)
		level = zapcore.DebugLevel
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	base := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), level)
	buf := logbuf.New()
	tapped := logbuf.Tap(base, zapcore.NewConsoleEncoder(encCfg), buf)

	log := zap.New(tapped, zap.AddCaller())
	return log, buf
}
