package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/platform"
	"github.com/cuemby/burrow/pkg/simulation"
	"github.com/cuemby/burrow/pkg/trace"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagLogLevel string
	flagLogJSON  bool

	flagPlatform    string
	flagWorkload    string
	flagSeed        int64
	flagHostFail    bool
	flagLinkFail    bool
	flagCtrlMsgSize int64
	flagDataDir     string
	flagMetricsAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - Discrete-event simulator for cyber-infrastructure workloads",
	Long: `Burrow simulates cyber-infrastructure workloads: compute services
executing jobs against storage and network services on a virtual-time
kernel, with faithful reproduction of partial failure under host and
link outages.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{
			Level:      flagLogLevel,
			JSONOutput: flagLogJSON,
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from a platform and a workload description",
	RunE: func(cmd *cobra.Command, args []string) error {
		sim := simulation.New(simulation.Config{
			Seed:                      flagSeed,
			HostShutdownSimulation:    flagHostFail,
			LinkShutdownSimulation:    flagLinkFail,
			DefaultControlMessageSize: flagCtrlMsgSize,
		})
		if err := sim.LoadPlatform(flagPlatform); err != nil {
			return fmt.Errorf("platform: %w", err)
		}
		scenario, err := simulation.LoadScenario(flagWorkload)
		if err != nil {
			return fmt.Errorf("workload: %w", err)
		}
		if err := sim.Build(scenario); err != nil {
			return fmt.Errorf("workload: %w", err)
		}

		if flagMetricsAddr != "" {
			go func() {
				http.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(flagMetricsAddr, nil); err != nil {
					log.Errorf("Metrics endpoint failed", err)
				}
			}()
		}

		sim.Launch()

		eventLog := sim.EventLog()
		for _, ev := range eventLog {
			fmt.Printf("%12.6f  %-22s %s %s %s\n", ev.TS, ev.Kind, ev.Job, ev.Service, ev.Detail)
		}

		if flagDataDir != "" {
			if err := os.MkdirAll(flagDataDir, 0o755); err != nil {
				return err
			}
			archive, err := trace.OpenArchive(flagDataDir)
			if err != nil {
				return err
			}
			defer archive.Close()
			runID := uuid.New().String()
			if err := archive.SaveRun(&trace.RunRecord{
				ID:       runID,
				Platform: flagPlatform,
				Workload: flagWorkload,
				EndTime:  sim.Kernel().Now(),
			}); err != nil {
				return err
			}
			if err := archive.SaveEvents(runID, eventLog); err != nil {
				return err
			}
			log.Logger.Info().Str("run_id", runID).Str("data_dir", flagDataDir).Msg("Run archived")
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a platform and workload description without running",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := platform.Load(flagPlatform); err != nil {
			return fmt.Errorf("platform: %w", err)
		}
		if flagWorkload != "" {
			if _, err := simulation.LoadScenario(flagWorkload); err != nil {
				return fmt.Errorf("workload: %w", err)
			}
		}
		fmt.Println("OK")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("burrow %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Log in JSON format")

	for _, cmd := range []*cobra.Command{runCmd, validateCmd} {
		cmd.Flags().StringVar(&flagPlatform, "platform", "", "Platform description file (YAML)")
		cmd.Flags().StringVar(&flagWorkload, "workload", "", "Workload description file (YAML)")
	}
	_ = runCmd.MarkFlagRequired("platform")
	_ = runCmd.MarkFlagRequired("workload")
	_ = validateCmd.MarkFlagRequired("platform")

	runCmd.Flags().Int64Var(&flagSeed, "seed", 1, "Random seed for the simulation kernel")
	runCmd.Flags().BoolVar(&flagHostFail, "host-shutdown-simulation", false, "Enable host on/off transitions and failure propagation")
	runCmd.Flags().BoolVar(&flagLinkFail, "link-shutdown-simulation", false, "Enable link on/off transitions")
	runCmd.Flags().Int64Var(&flagCtrlMsgSize, "default-control-message-size", 0, "Default control message size in bytes")
	runCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "Directory for the run archive (empty disables archiving)")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Prometheus metrics listen address (empty disables)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}
