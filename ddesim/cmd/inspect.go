package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ddesim/datarecording"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [recording]",
		Short: "Summarize a recorded run.",
		Long: "`inspect run.sqlite3` lists the tables of a recording and " +
			"prints the run properties, the deadlock resolutions, and the " +
			"task statistics.",
		Args: cobra.ExactArgs(1),
		RunE: inspectRecording,
	}
}

func inspectRecording(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		return err
	}

	reader, err := datarecording.NewReader(args[0])
	if err != nil {
		return err
	}
	defer reader.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	tables, err := reader.ListTables(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "tables: %v\n", tables)

	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}

	if present["exec_info"] {
		reader.MapTable("exec_info", datarecording.ExecInfo{})

		rows, _, err := reader.Query(ctx, "exec_info", datarecording.QueryParams{})
		if err != nil {
			return err
		}

		for _, r := range rows {
			info := r.(*datarecording.ExecInfo)
			fmt.Fprintf(out, "%s: %s\n", info.Property, info.Value)
		}
	}

	if present["deadlocks"] {
		if err := printDeadlocks(cmd, reader); err != nil {
			return err
		}
	}

	if present["task_stats"] {
		reader.MapTable("task_stats", datarecording.TaskStatsEntry{})

		rows, _, err := reader.Query(ctx, "task_stats",
			datarecording.QueryParams{OrderBy: "Kind, Location"})
		if err != nil {
			return err
		}

		for _, r := range rows {
			st := r.(*datarecording.TaskStatsEntry)
			fmt.Fprintf(out, "%s %s: count %d busy %.6f average %.6f\n",
				st.Kind, st.Location, st.Count, st.BusyTime, st.AverageTime)
		}
	}

	return nil
}

func printDeadlocks(cmd *cobra.Command, reader datarecording.DataReader) error {
	reader.MapTable("deadlocks", datarecording.DeadlockEntry{})

	rows, _, err := reader.Query(cmd.Context(), "deadlocks",
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.(*datarecording.DeadlockEntry).Kind]++
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	out := cmd.OutOrStdout()
	for _, k := range kinds {
		fmt.Fprintf(out, "deadlocks %s: %d\n", k, counts[k])
	}

	return nil
}
