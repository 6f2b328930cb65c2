package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/fbolanos/AutoHeadFixFB/internal/config"
	"github.com/fbolanos/AutoHeadFixFB/internal/observability"
)

type runOptions struct {
	configPath string
	cage       string
	logLevel   string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a head-fix session until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "TOML config file (overlays HEADFIX_* environment)")
	cmd.Flags().StringVar(&opts.cage, "cage", "", "Cage identifier (overrides config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")

	return cmd
}

func loadRunConfig(opts runOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.cage != "" {
		cfg.CageID = opts.cage
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runSession(cmd *cobra.Command, opts runOptions) error {
	cfg, err := loadRunConfig(opts)
	if err != nil {
		return err
	}

	logger := observability.InitLogger("headfix", cfg.LogLevel, cfg.LogPretty).
		With().Str("cage", cfg.CageID).Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hw, err := openHardware(cfg)
	if err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r, err := buildRig(ctx, cfg, hw, logger, promReg)
	if err != nil {
		return err
	}
	defer r.close()

	return r.run(ctx)
}
