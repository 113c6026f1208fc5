package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyrun/internal/storage"
	"github.com/michaelbrown/pyrun/internal/storage/sqlite"
)

var (
	statusFilter string
	sourceFilter string
	limitFlag    int
	exportFormat string
	exportOutput string
	exportLimit  int
	forceFlag    bool
	olderThan    time.Duration
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"run-history", "r"},
	Short:   "Manage run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show run details and code",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var runsExportCmd = &cobra.Command{
	Use:   "export [run-id...]",
	Short: "Export runs as markdown, JSON or YAML",
	Long: `Export the named runs, or the most recent runs when no IDs are given.

Examples:
  pyrun runs export --format json -o runs.json
  pyrun runs export 3f2a9c1e --format yaml`,
	RunE: runRunsExport,
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than a cutoff",
	RunE:  runRunsPrune,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd, runsExportCmd, runsPruneCmd)

	runsListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (ok, failed, timeout, unavailable)")
	runsListCmd.Flags().StringVar(&sourceFilter, "source", "", "Filter by source (http, ws, cli, mcp)")
	runsListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max runs to show")

	runsExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md, json or yaml")
	runsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	runsExportCmd.Flags().IntVar(&exportLimit, "limit", 50, "Max runs to export when no IDs are given")

	runsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")

	runsPruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete runs created before now minus this duration")
}

func openStore() (storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return sqlite.Open(cfg.Storage.DBPath)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := storage.RunListOptions{
		Status: storage.RunStatus(statusFilter),
		Source: storage.Source(sourceFilter),
		Limit:  limitFlag,
	}

	runs, err := store.ListRuns(context.Background(), opts)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	// Header
	fmt.Printf("%-10s %-12s %-6s %-14s %-38s %s\n", "ID", "STATUS", "SOURCE", "OUTPUTS", "CODE", "CREATED")
	fmt.Println(strings.Repeat("─", 95))

	for _, r := range runs {
		code := truncate(firstLine(r.Code), 35)
		if code == "" {
			code = "(empty)"
		}

		fmt.Printf("%-10s %-12s %-6s %-14s %-38s %s\n",
			r.ID[:8], statusLabel(r.Status), r.Source, outputSummary(r), code, timeAgo(r.CreatedAt))
	}

	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Status:   %s\n", statusLabel(r.Status))
	fmt.Printf("Source:   %s\n", r.Source)
	fmt.Printf("Outputs:  %s\n", outputSummary(*r))
	fmt.Printf("Duration: %s\n", time.Duration(r.DurationMS)*time.Millisecond)
	fmt.Printf("Created:  %s\n", r.CreatedAt.Format(time.RFC3339))
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", errorColor.Sprint(truncate(r.Error, 200)))
	}

	fmt.Println(strings.Repeat("─", 60))
	for i, line := range strings.Split(strings.TrimRight(r.Code, "\n"), "\n") {
		dimColor.Printf("%4d │ ", i+1)
		fmt.Println(line)
	}

	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	r, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		fmt.Printf("Delete run %s - %q? [y/N] ", r.ID[:8], truncate(firstLine(r.Code), 40))
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteRun(ctx, r.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted run %s\n", r.ID[:8])
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var runs []storage.Run
	if len(args) == 0 {
		runs, err = store.ListRuns(ctx, storage.RunListOptions{Limit: exportLimit})
		if err != nil {
			return err
		}
	}
	for _, id := range args {
		r, err := store.GetRun(ctx, id)
		if err != nil {
			return err
		}
		runs = append(runs, *r)
	}

	output, err := storage.Export(runs, exportFormat)
	if err != nil {
		return err
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, output, 0o644)
	}

	os.Stdout.Write(output)
	return nil
}

func runRunsPrune(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.PruneRuns(context.Background(), time.Now().Add(-olderThan))
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d run(s) older than %s\n", n, olderThan)
	return nil
}

func statusLabel(s storage.RunStatus) string {
	switch s {
	case storage.StatusOK:
		return okColor.Sprint(s)
	case storage.StatusFailed, storage.StatusTimeout:
		return errorColor.Sprint(s)
	default:
		return string(s)
	}
}

func outputSummary(r storage.Run) string {
	return fmt.Sprintf("%d text, %d img", r.TextItems, r.ImageItems)
}
