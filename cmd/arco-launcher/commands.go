package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	arco "github.com/icpac-igad/arco-ibf"
)

func createUpCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Start the topology and supervise it until stopped",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runUp(flags.ConfigPath)
		},
	}
}

func runUp(configPath string) error {
	cfg, err := arco.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	// fail fast on topology problems before anything is spawned
	if _, err := arco.StartOrder(cfg.Services); err != nil {
		return err
	}

	log := cfg.Log.NewSlogger()
	slog.SetDefault(log)
	if err := arco.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	l := arco.NewFromConfig(cfg, arco.Options{Logger: log})

	var statusSrv *http.Server
	if cfg.Server.Enabled {
		statusSrv = arco.NewStatusServer(cfg.Server.Listen, cfg.Server.BasePath, l)
		log.Info("status server listening", slog.String("addr", cfg.Server.Listen))
	}

	// The signal handler only posts the request; all process teardown
	// happens on the launcher's own control flow.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("termination signal received", slog.String("signal", sig.String()))
		l.RequestShutdown()
	}()

	runErr := l.Run(context.Background())

	if statusSrv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = statusSrv.Shutdown(shutCtx)
		cancel()
	}
	if runErr != nil {
		log.Error("launcher exited with failure", slog.String("error", runErr.Error()))
		return runErr
	}
	log.Info("stopped by request")
	return nil
}

func createCheckCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the topology file and print the resolved start order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := arco.LoadConfig(flags.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", flags.ConfigPath, err)
			}
			order, err := arco.StartOrder(cfg.Services)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d service(s), start order:\n", flags.ConfigPath, len(order))
			for i, def := range order {
				line := fmt.Sprintf("  %d. %s", i+1, def.Name)
				if len(def.DependsOn) > 0 {
					line += fmt.Sprintf(" (after %s)", strings.Join(def.DependsOn, ", "))
				}
				if def.Readiness != nil {
					line += fmt.Sprintf(" [readiness %s]", def.Readiness.Addr())
				}
				cmd.Println(line)
			}
			return nil
		},
	}
}
