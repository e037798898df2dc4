package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/goal-planner/internal/dependency"
	"github.com/t77yq/goal-planner/internal/model"
	"github.com/t77yq/goal-planner/internal/render"
	"github.com/t77yq/goal-planner/internal/storage"
)

type options struct {
	json    bool
	noColor bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "goalplan",
		Short: "Inspect the dependency layout of a goal's tasks",
		Long: `goalplan reads a goal detail document as returned by the planning service
and prints the execution levels of its tasks, the anomalies of the dependency
graph, or the dependencies of a single task.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(levelsCmd(opts))
	rootCmd.AddCommand(anomaliesCmd(opts))
	rootCmd.AddCommand(inspectCmd(opts))
	rootCmd.AddCommand(historyCmd(opts))

	return rootCmd
}

func levelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "levels <file>",
		Short: "Print tasks grouped by execution level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, layout, err := loadLayout(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return outputJSON(out, layout)
			}

			r := render.New(out)
			r.Header(detail.Goal, layout.Stats)
			r.Levels(layout)
			if layout.Anomalies.Degenerate() {
				fmt.Fprintln(out)
				r.Anomalies(layout.Anomalies)
			}
			return nil
		},
	}
}

func anomaliesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "anomalies <file>",
		Short: "Print root/leaf counts, cycles and dangling references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, layout, err := loadLayout(args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return outputJSON(cmd.OutOrStdout(), layout.Anomalies)
			}
			render.New(cmd.OutOrStdout()).Anomalies(layout.Anomalies)
			return nil
		},
	}
}

func inspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file> [task-id]",
		Short: "Show what a task depends on and what depends on it",
		Long: `Without a task id every task is shown in level order.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, layout, err := loadLayout(args[0])
			if err != nil {
				return err
			}

			var ids []string
			if len(args) == 2 {
				ids = []string{args[1]}
			} else {
				for _, level := range layout.Levels {
					ids = append(ids, level...)
				}
			}

			selections := make([]*dependency.Selection, 0, len(ids))
			for _, id := range ids {
				sel, err := layout.Select(id)
				if err != nil {
					return err
				}
				selections = append(selections, sel)
			}

			if opts.json {
				if len(args) == 2 {
					return outputJSON(cmd.OutOrStdout(), selections[0])
				}
				return outputJSON(cmd.OutOrStdout(), selections)
			}

			r := render.New(cmd.OutOrStdout())
			for i, sel := range selections {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				r.Selection(sel)
			}
			return nil
		},
	}
}

func historyCmd(opts *options) *cobra.Command {
	var (
		dbPath     string
		goalID     string
		degenerate bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List layouts recorded by the planner service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := storage.NewSQLiteLayoutHistory(zap.NewNop(), dbPath)
			if err != nil {
				return err
			}
			defer history.Close()

			filter := storage.HistoryFilter{GoalID: goalID, DegenerateOnly: degenerate}
			records, err := history.List(cmd.Context(), filter, 0, limit)
			if err != nil {
				return err
			}
			total, err := history.Count(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				for _, r := range records {
					r.Layout = nil
				}
				return outputJSON(out, records)
			}

			for _, r := range records {
				flag := render.Green("ok")
				if r.HasNoRoots || r.HasCycle {
					flag = render.Red("degenerate")
				}
				fmt.Fprintf(out, "%s  %s  %d tasks  %d levels  %s\n",
					r.RenderedAt.Local().Format("2006-01-02 15:04:05"), r.GoalID, r.TaskCount, r.LevelCount, flag)
			}
			fmt.Fprintln(out, render.Dim(fmt.Sprintf("%d of %d records", len(records), total)))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "layout_history.db", "Layout history database path")
	cmd.Flags().StringVar(&goalID, "goal", "", "Only show layouts of this goal")
	cmd.Flags().BoolVar(&degenerate, "degenerate", false, "Only show layouts with anomalies")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records")

	return cmd
}

func loadLayout(path string) (*model.GoalDetail, *dependency.Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read goal file: %w", err)
	}
	detail, err := model.DecodeGoalDetail(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse goal file: %w", err)
	}
	layout, err := dependency.Build(detail.Tasks)
	if err != nil {
		return nil, nil, err
	}
	return detail, layout, nil
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
