package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/minicortex/minicortex"
	"github.com/minicortex/minicortex/config"
	"github.com/minicortex/minicortex/internal/transport/httpapi"
	"github.com/minicortex/minicortex/internal/transport/ws"
	"github.com/minicortex/minicortex/log"
	"github.com/minicortex/minicortex/nodes"
	"github.com/minicortex/minicortex/persistence/leveldb"
)

// defaultConfig seeds a Config with the daemon's built-in defaults.
func defaultConfig() config.Config {
	return config.NewConfig(map[string]interface{}{
		"addr": ":8080",
		"db":   "./minicortex.db",
		"hz":   40.0,
	})
}

// loadConfig overlays environment variables onto the defaults. There is
// no third-party env-binding dependency in the pack with real usage to
// learn from (see DESIGN.md "Dependencies considered and rejected"), so
// this is three explicit os.Getenv checks against the same Config the
// rest of the daemon already reads from.
func loadConfig() config.Config {
	cfg := defaultConfig()
	if v := os.Getenv("MINICORTEX_ADDR"); v != "" {
		cfg.Set(v, "addr")
	}
	if v := os.Getenv("MINICORTEX_DB"); v != "" {
		cfg.Set(v, "db")
	}
	if v := os.Getenv("MINICORTEX_HZ"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Set(f, "hz")
		}
	}
	return cfg
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "minicortexd",
		Short:         "MiniCortex node-graph execution daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd(), newWorkspaceCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr, dbPath string
	var hz float64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the registry, supervisor and control-plane transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cmd.Flags().Changed("addr") {
				cfg.Set(addr, "addr")
			}
			if cmd.Flags().Changed("db") {
				cfg.Set(dbPath, "db")
			}
			if cmd.Flags().Changed("hz") {
				cfg.Set(hz, "hz")
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&dbPath, "db", "", "workspace store path (default ./minicortex.db)")
	cmd.Flags().Float64Var(&hz, "hz", 0, "initial tick rate in Hz (default 40)")
	return cmd
}

func runServe(cfg config.Config) error {
	logger := log.New("component", "minicortexd")

	reg := minicortex.NewRegistry(logger)
	if err := nodes.RegisterAll(reg); err != nil {
		return fmt.Errorf("registering builtin classes: %w", err)
	}

	sup := minicortex.NewSupervisor(reg, logger, cfg.Get("hz").Float64(40.0))
	sup.Run()
	defer sup.Close()

	db, err := leveldb.Open(cfg.Get("db").String("./minicortex.db"))
	if err != nil {
		return fmt.Errorf("opening workspace store: %w", err)
	}
	defer db.Close()

	workspaces := minicortex.NewWorkspaceStore(db, reg, sup, logger)

	srv := httpapi.New(httpapi.Config{
		Addr:              cfg.Get("addr").String(":8080"),
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	})
	api := &httpapi.API{Registry: reg, Supervisor: sup, Workspaces: workspaces, Candidates: nodes.Classes}
	api.Register(srv)

	wsHandler := &ws.Handler{Supervisor: sup, Logger: logger}
	srv.Handle(http.MethodGet, "/events", func(w http.ResponseWriter, r *http.Request, _ httpapi.Params) {
		wsHandler.ServeHTTP(w, r)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Infow("minicortexd listening", "addr", cfg.Get("addr").String(":8080"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Infow("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Close(ctx)
}

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "inspect saved workspaces without starting the daemon",
	}
	cmd.AddCommand(newWorkspaceListCmd(), newWorkspaceDeleteCmd())
	return cmd
}

func openStoreFromFlags(cmd *cobra.Command, dbPath string) (*leveldb.DB, error) {
	cfg := loadConfig()
	if cmd.Flags().Changed("db") {
		cfg.Set(dbPath, "db")
	}
	return leveldb.Open(cfg.Get("db").String("./minicortex.db"))
}

func newWorkspaceListCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list saved workspace names",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStoreFromFlags(cmd, dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			names, err := db.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "workspace store path (default ./minicortex.db)")
	return cmd
}

func newWorkspaceDeleteCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "delete a saved workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStoreFromFlags(cmd, dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Delete(args[0])
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "workspace store path (default ./minicortex.db)")
	return cmd
}
