package cmd

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/ddesim/config"
	"github.com/sarchlab/ddesim/models"
	"github.com/sarchlab/ddesim/sim"
	"github.com/sarchlab/ddesim/simulation"
	"github.com/sarchlab/ddesim/tracing"
)

type runOptions struct {
	stopTime    float64
	monitor     bool
	monitorPort int
	browser     bool
	record      string
	capacity    int
	maxCapacity int
	parallelIDs bool
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:       "run [model]",
		Short:     "Run a demonstration model.",
		Long:      "`run feedback` runs a countdown loop, `run pipeline` runs tasks sharing a processor.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: models.Names(),
		RunE:      runModel,
	}

	flags := runCmd.Flags()
	flags.Float64("stop-time", 10, "Virtual time at which the model completes, inf for none")
	flags.Bool("monitor", false, "Serve the monitoring API while running")
	flags.Int("monitor-port", 0, "Port of the monitoring server, random if unset")
	flags.Bool("browser", false, "Open the monitoring API in a browser")
	flags.String("record", "", "Path of the SQLite recording, without extension")
	flags.Int("capacity", 1, "Initial capacity of every receiver")
	flags.Int("max-capacity", 0, "Capacity up to which full receivers may grow")
	flags.StringSlice("env", nil, "Dotenv files with model parameters")
	flags.Bool("parallel-ids", false, "Generate globally unique IDs instead of sequential ones")

	return runCmd
}

// resolveOptions takes flags that are set on the command line first, then
// parameters, then flag defaults.
func resolveOptions(cmd *cobra.Command, params *config.Params) (runOptions, error) {
	flags := cmd.Flags()
	opts := runOptions{}
	var err error

	opts.stopTime, _ = flags.GetFloat64("stop-time")
	if !flags.Changed("stop-time") {
		if opts.stopTime, err = params.Float("stop_time", opts.stopTime); err != nil {
			return opts, err
		}
	}

	opts.monitor, _ = flags.GetBool("monitor")
	if !flags.Changed("monitor") {
		if opts.monitor, err = params.Bool("monitor", opts.monitor); err != nil {
			return opts, err
		}
	}

	opts.monitorPort, _ = flags.GetInt("monitor-port")
	if !flags.Changed("monitor-port") {
		if opts.monitorPort, err = params.Int("monitor_port", opts.monitorPort); err != nil {
			return opts, err
		}
	}

	opts.browser, _ = flags.GetBool("browser")

	opts.record, _ = flags.GetString("record")
	if !flags.Changed("record") {
		opts.record = params.String("record", opts.record)
	}

	opts.capacity, _ = flags.GetInt("capacity")
	if !flags.Changed("capacity") {
		if opts.capacity, err = params.Int("capacity", opts.capacity); err != nil {
			return opts, err
		}
	}

	opts.maxCapacity, _ = flags.GetInt("max-capacity")
	if !flags.Changed("max-capacity") {
		if opts.maxCapacity, err = params.Int("max_capacity", opts.maxCapacity); err != nil {
			return opts, err
		}
	}

	opts.parallelIDs, _ = flags.GetBool("parallel-ids")

	if opts.stopTime < 0 {
		return opts, fmt.Errorf("stop time must not be negative, got %g", opts.stopTime)
	}

	if opts.browser && !opts.monitor {
		return opts, fmt.Errorf("--browser requires --monitor")
	}

	return opts, nil
}

func (o runOptions) builder() simulation.Builder {
	b := simulation.MakeBuilder().
		WithCapacity(o.capacity).
		WithMaxCapacity(o.maxCapacity).
		WithOutputFileName(o.record)

	if o.parallelIDs {
		b = b.WithParallelIDs()
	}

	if !math.IsInf(o.stopTime, 1) {
		b = b.WithStopTime(sim.VTimeInSec(o.stopTime))
	}

	if !o.monitor {
		return b.WithoutMonitoring()
	}

	if o.monitorPort > 0 {
		b = b.WithMonitorPort(o.monitorPort)
	}

	if o.browser {
		b = b.WithBrowser()
	}

	return b
}

func runModel(cmd *cobra.Command, args []string) error {
	envFiles, _ := cmd.Flags().GetStringSlice("env")

	params, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	opts, err := resolveOptions(cmd, params)
	if err != nil {
		return err
	}

	name := args[0]
	s := opts.builder().Build("Model")
	defer s.Terminate()

	demo, err := models.Build(name, s, params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logrus.WithFields(logrus.Fields{
		"model":     name,
		"stop_time": opts.stopTime,
	}).Info("running model")

	if err := s.Run(ctx); err != nil {
		return err
	}

	printSummary(cmd, demo)
	printTaskStats(cmd, s.TaskStats())

	return nil
}

func printSummary(cmd *cobra.Command, demo models.Demo) {
	summary := demo.Summary()

	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintf(out, "%s: %s\n", k, summary[k])
	}

	for _, r := range demo.Sink().Records() {
		fmt.Fprintf(out, "%.6f %v\n", float64(r.Time), r.Token)
	}
}

func printTaskStats(cmd *cobra.Command, stats []tracing.TimeStats) {
	out := cmd.OutOrStdout()
	for _, st := range stats {
		fmt.Fprintf(out, "%s %s: count %d busy %.6f average %.6f\n",
			st.Kind, st.Location, st.Count,
			float64(st.BusyTime), float64(st.AverageTime))
	}
}
