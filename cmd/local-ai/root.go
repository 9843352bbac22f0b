package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jamesonBradfield/local-ai-manager/internal/config"
	"github.com/jamesonBradfield/local-ai-manager/internal/httpapi"
	"github.com/jamesonBradfield/local-ai-manager/internal/registry"
	"github.com/jamesonBradfield/local-ai-manager/internal/supervisor"
	"github.com/jamesonBradfield/local-ai-manager/internal/watcher"
	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

// app bundles the wired components every subcommand works with.
type app struct {
	cfg   config.SystemConfig
	paths config.Paths
	log   zerolog.Logger
	reg   *registry.Registry
	sup   *supervisor.Supervisor
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "local-ai",
		Short:         "Supervise a local llama-server and hand compute to games automatically",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (json/yaml/toml); defaults to the platform config dir")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	setup := func() (*app, error) {
		paths, err := config.NewPaths()
		if err != nil {
			return nil, err
		}
		cfg, err := config.LoadOrDefault(configPath, paths)
		if err != nil {
			return nil, err
		}
		level := zerolog.InfoLevel
		if verbose || cfg.Verbose {
			level = zerolog.DebugLevel
		}
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
		reg := registry.New(cfg.Models, paths.ExpandHome(cfg.Server.ModelsDir), paths.ExpandHome(cfg.Server.CacheDir), cfg.Server.DefaultModel, log)
		sup := supervisor.New(cfg.Server, log)
		return &app{cfg: cfg, paths: paths, log: log, reg: reg, sup: sup}, nil
	}

	root.AddCommand(
		newStartCmd(setup),
		newStopCmd(setup),
		newStatusCmd(setup),
		newModelsCmd(setup),
		newGenerateCmd(setup),
		newWatchCmd(setup),
	)
	return root
}

func newStartCmd(setup func() (*app, error)) *cobra.Command {
	var (
		foreground bool
		useCache   bool
		extraArgs  []string
	)
	cmd := &cobra.Command{
		Use:   "start [model-id]",
		Short: "Start the inference server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			var am types.AvailableModel
			var ok bool
			if len(args) == 1 {
				if am, ok = a.reg.ByID(args[0]); !ok {
					return fmt.Errorf("model %q not available", args[0])
				}
			} else if am, ok = a.reg.AutoSelect(); !ok {
				return errors.New("no models available")
			}
			opts := supervisor.StartOptions{Background: !foreground, UseCache: useCache, ExtraArgs: extraArgs}
			return a.sup.Start(am.Def, am.Path, opts, a.reg.Available())
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run the server in the foreground without health gating")
	cmd.Flags().BoolVar(&useCache, "use-cache", false, "resume from the saved prompt cache")
	cmd.Flags().StringSliceVar(&extraArgs, "extra-arg", nil, "additional llama-server argument (repeatable)")
	return cmd
}

func newStopCmd(setup func() (*app, error)) *cobra.Command {
	var saveCache bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the inference server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			return a.sup.Stop(saveCache)
		},
	}
	cmd.Flags().BoolVar(&saveCache, "save-cache", true, "graceful stop preserving the prompt cache; false also kills descendants")
	return cmd
}

func newStatusCmd(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			st := a.sup.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "running: %v\nhealthy: %v\n", st.Running, st.Healthy)
			if st.Model != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "model:   %s\n", st.Model)
			}
			if st.Build != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "build:   %s\n", st.Build)
			}
			if st.Err != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "error:   %s\n", st.Err)
			}
			return nil
		},
	}
}

func newModelsCmd(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models resolved on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			for _, am := range a.reg.Available() {
				cached := " "
				if _, err := os.Stat(a.reg.CachePath(am.ID)); err == nil {
					cached = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s p%-2d %s\n", cached, am.ID, am.Def.Priority, am.Path)
			}
			return nil
		},
	}
}

func newGenerateCmd(setup func() (*app, error)) *cobra.Command {
	var (
		temperature float64
		maxTokens   int
	)
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Send a prompt to the running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			req := types.ChatRequest{
				Messages:    []types.ChatMessage{{Role: "user", Content: strings.Join(args, " ")}},
				Temperature: temperature,
				MaxTokens:   maxTokens,
			}
			content, err := a.sup.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	}
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 1024, "maximum tokens to generate")
	return cmd
}

// adminService adapts the wired components to the admin HTTP surface.
type adminService struct {
	sup *supervisor.Supervisor
	reg *registry.Registry
	mon *watcher.Monitor
}

func (s adminService) Status() types.ServerStatus     { return s.sup.Status() }
func (s adminService) Models() []types.AvailableModel { return s.reg.Available() }
func (s adminService) Sessions() []types.GameSession  { return s.mon.Sessions() }
func (s adminService) Generate(ctx context.Context, req types.ChatRequest) (string, error) {
	return s.sup.Generate(ctx, req)
}

func newWatchCmd(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the game activity monitor until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			if !a.cfg.Watcher.Enabled {
				return errors.New("watcher is disabled in config")
			}
			logPath, err := watcher.FindLogFile(a.cfg.Watcher, a.paths)
			if err != nil {
				return err
			}

			agent := watcher.NewAgentSwitcher(a.cfg.Agent, a.log)
			orch := watcher.NewOrchestrator(a.cfg.Watcher, a.cfg.Server.DefaultModel, a.sup, a.reg, agent, a.log)
			mon := watcher.NewMonitor(logPath, orch.Hooks(), a.log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if a.cfg.Admin.Enabled {
				srv := &http.Server{
					Addr:    a.cfg.Admin.Addr,
					Handler: httpapi.NewRouter(adminService{sup: a.sup, reg: a.reg, mon: mon}, a.log),
				}
				go func() {
					a.log.Info().Str("addr", a.cfg.Admin.Addr).Msg("admin surface listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error().Err(err).Msg("admin server error")
					}
				}()
				defer func() { _ = srv.Close() }()
			}

			err = mon.Run(ctx)
			a.sup.Shutdown()
			return err
		},
	}
}
