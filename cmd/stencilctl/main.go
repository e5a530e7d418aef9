package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/halostencil/internal/config"
	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/logging"
	"github.com/spf13/cobra"
)

var (
	logLevel string

	localProcs      int
	localDims       []int
	localPeriodic   []bool
	localIterations int
	localSeed       int64
	localCluster    string
	localVerify     bool
	localPrint      bool

	rankCluster string
	rankOverlay string
	rankIndex   int
	rankListen  string
	rankAdmin   string
	rankToken   string
	rankDrain   time.Duration

	templateKind   string
	templateOutput string
	templateForce  bool
)

var rootCmd = &cobra.Command{
	Use:   "stencilctl",
	Short: "Run distributed stencil sweeps with halo exchange",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.ConfigureRuntime()
		if logLevel != "" && !logging.SetLevel(logLevel) {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		return nil
	},
	SilenceUsage: true,
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run every rank as a goroutine in this process",
	Args:  cobra.NoArgs,
	RunE:  runLocalCmd,
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Run one rank of a TCP cluster",
	Args:  cobra.NoArgs,
	RunE:  runRankCmd,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or validate config files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if templateOutput == "" {
			return fmt.Errorf("--output is required")
		}
		if err := config.WriteTemplate(templateOutput, templateKind, templateForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", templateKind, templateOutput)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <cluster.toml>",
	Short: "Validate a cluster config and the stencil it describes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClusterConfig(args[0])
		if err != nil {
			return err
		}
		if _, err := cfg.Table(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "validated cluster config %q at %s\n", cfg.Name, args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides HALO_LOG_LEVEL)")

	localCmd.Flags().IntVarP(&localProcs, "procs", "n", 4, "Number of goroutine ranks")
	localCmd.Flags().IntSliceVar(&localDims, "dims", []int{16, 16}, "Global grid extents")
	localCmd.Flags().BoolSliceVar(&localPeriodic, "periodic", nil, "Periodic flag per axis (default all false)")
	localCmd.Flags().IntVar(&localIterations, "iterations", 10, "Diffusion steps")
	localCmd.Flags().Int64Var(&localSeed, "seed", 1, "Initial field seed")
	localCmd.Flags().StringVar(&localCluster, "cluster", "", "Take the problem from a cluster config instead of flags")
	localCmd.Flags().BoolVar(&localVerify, "verify", false, "Compare against the serial evaluation")
	localCmd.Flags().BoolVar(&localPrint, "print", false, "Print the gathered field")

	rankCmd.Flags().StringVar(&rankCluster, "cluster", "", "Cluster config shared by every rank")
	rankCmd.Flags().StringVar(&rankOverlay, "config", "", "Per-rank overlay config")
	rankCmd.Flags().IntVar(&rankIndex, "rank", -1, "Rank to run (overrides the overlay)")
	rankCmd.Flags().StringVar(&rankListen, "listen", "", "Listen address (overrides the overlay)")
	rankCmd.Flags().StringVar(&rankAdmin, "admin-addr", "", "Admin HTTP address (overrides the overlay)")
	rankCmd.Flags().StringVar(&rankToken, "admin-token", "", "Bearer token required by /stencil and /metrics (overrides the overlay)")
	rankCmd.Flags().DurationVar(&rankDrain, "drain", 30*time.Second, "How long to keep serving unfetched slabs")
	_ = rankCmd.MarkFlagRequired("cluster")

	configInitCmd.Flags().StringVar(&templateKind, "kind", "cluster", "Template kind: cluster|rank")
	configInitCmd.Flags().StringVarP(&templateOutput, "output", "o", "", "Output path")
	configInitCmd.Flags().BoolVar(&templateForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(localCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "stencilctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runLocalCmd(cmd *cobra.Command, args []string) error {
	var p problem
	if localCluster != "" {
		cfg, err := config.LoadClusterConfig(localCluster)
		if err != nil {
			return err
		}
		if p, err = problemFromCluster(cfg); err != nil {
			return err
		}
	} else {
		cfg := config.ClusterConfig{
			Dims:       localDims,
			Periodic:   localPeriodic,
			Iterations: localIterations,
			Seed:       localSeed,
			Stencil:    config.StencilLaplacian,
		}
		if cfg.Periodic == nil {
			cfg.Periodic = make([]bool, len(cfg.Dims))
		}
		if err := config.ValidateClusterConfig(cfg); err != nil {
			return err
		}
		var err error
		if p, err = problemFromCluster(cfg); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("iterations") {
		p.iterations = localIterations
	}

	out, s, err := runLocal(cmd.Context(), p, localProcs)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "procs=%d dims=%s iterations=%d sum=%.12g max_abs=%.12g elapsed=%s\n",
		localProcs, p.dims, p.iterations, s.Sum, s.MaxAbs, s.Elapsed)
	if localPrint {
		printField(cmd, out)
	}
	if localVerify {
		want, err := runSerial(p)
		if err != nil {
			return err
		}
		if !out.ApproxEqual(want, 1e-9) {
			return fmt.Errorf("distributed result differs from serial evaluation")
		}
		fmt.Fprintln(w, "verify=ok")
	}
	return nil
}

func printField(cmd *cobra.Command, a *grid.Array) {
	shape := a.Shape()
	row := shape[len(shape)-1]
	for i, v := range a.Data() {
		sep := " "
		if (i+1)%row == 0 {
			sep = "\n"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%9.4f%s", v, sep)
	}
}

func runRankCmd(cmd *cobra.Command, args []string) error {
	cluster, err := config.LoadClusterConfig(rankCluster)
	if err != nil {
		return err
	}
	if len(cluster.Peers) == 0 {
		return fmt.Errorf("cluster config %s lists no [[peer]] entries", rankCluster)
	}

	overlay := defaultRankConfig()
	if rankOverlay != "" {
		if overlay, err = loadRankConfig(rankOverlay); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("rank") {
		overlay.Rank = rankIndex
	}
	if cmd.Flags().Changed("listen") {
		overlay.Listen = rankListen
	}
	if cmd.Flags().Changed("admin-addr") {
		overlay.AdminAddr = rankAdmin
	}
	if cmd.Flags().Changed("admin-token") {
		overlay.AdminToken = rankToken
	}
	if overlay.LogLevel != "" && logLevel == "" {
		logging.SetLevel(overlay.LogLevel)
	}
	if overlay.Rank < 0 || overlay.Rank >= len(cluster.Peers) {
		return fmt.Errorf("rank %d outside cluster of %d", overlay.Rank, len(cluster.Peers))
	}
	if overlay.AdminAddr == "" {
		overlay.AdminAddr = cluster.AdminAddr(overlay.Rank)
	}

	return runRank(cmd.Context(), cluster, rankOptions{
		rank:       overlay.Rank,
		size:       len(cluster.Peers),
		listen:     overlay.Listen,
		adminAddr:  overlay.AdminAddr,
		adminToken: overlay.AdminToken,
		drain:      rankDrain,
	}, cmd.OutOrStdout())
}
