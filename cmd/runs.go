package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwbudde/saxpycl/internal/store"
)

var (
	recordsDir    string
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var errNoRecordDir = errors.New("no record directory: set output.dir or --data-dir")

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored run records",
	Long: `Manage the records written by 'run' when output.dir or --data-dir is set.
Each record holds the device, verification result and output vector of one run.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns(cmd.OutOrStdout(), resolveRecordsDir())
	},
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(cmd.OutOrStdout(), resolveRecordsDir(), args[0])
	},
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old run records",
	Long: `Delete run records based on retention policy.
You can keep only the newest N records or delete records older than N days.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cleanRuns(cmd.InOrStdin(), cmd.OutOrStdout(), resolveRecordsDir())
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&recordsDir, "data-dir", "", "Record directory (default output.dir from config)")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N records (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete records older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func resolveRecordsDir() string {
	if recordsDir != "" {
		return recordsDir
	}
	if cfg != nil {
		return cfg.Output.Dir
	}
	return ""
}

func openRecords(dir string) (*store.FSStore, error) {
	if dir == "" {
		return nil, errNoRecordDir
	}
	fs, err := store.NewFSStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return fs, nil
}

func listRuns(out io.Writer, dir string) error {
	records, err := openRecords(dir)
	if err != nil {
		return err
	}

	infos, err := records.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	slices.SortFunc(infos, func(a, b store.RecordInfo) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	p := newPainter(out)
	t := newTable(p, "RUN ID", "WHEN", "BACKEND", "DEVICE", "ELEMENTS", "STATUS", "SIZE")
	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := records.Size(info.RunID); err == nil {
			sizeStr = humanize.Bytes(uint64(size))
		}

		t.Row(
			shortID(info.RunID),
			humanize.Time(info.Timestamp),
			info.Backend,
			info.Device,
			humanize.Comma(int64(info.Elements)),
			p.status(info.Verified, statusLabel(info.Verified)),
			sizeStr,
		)
	}

	fmt.Fprintln(out, t.String())
	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func showRun(out io.Writer, dir, runID string) error {
	records, err := openRecords(dir)
	if err != nil {
		return err
	}

	runID, err = resolveRunID(records, runID)
	if err != nil {
		return err
	}
	rec, err := records.LoadRecord(runID)
	if err != nil {
		return err
	}

	p := newPainter(out)
	fmt.Fprintf(out, "%s %s\n", p.paint(titleStyle, "Run"), rec.RunID)
	fmt.Fprintf(out, "  time:     %s (%s)\n", rec.Timestamp.Format(time.RFC3339), humanize.Time(rec.Timestamp))
	fmt.Fprintf(out, "  backend:  %s\n", rec.Backend)
	fmt.Fprintf(out, "  platform: %s\n", rec.Platform)
	fmt.Fprintf(out, "  device:   %s\n", rec.Device)
	fmt.Fprintf(out, "  kernel:   %s, scalar %g\n", rec.EntryPoint, rec.Scalar)
	fmt.Fprintf(out, "  elements: %s\n", humanize.Comma(int64(rec.Elements)))
	fmt.Fprintf(out, "  status:   %s\n", p.status(rec.Verified, statusLabel(rec.Verified)))

	n := min(len(rec.Output), 8)
	head := make([]string, n)
	for i := range n {
		head[i] = fmt.Sprintf("%g", rec.Output[i])
	}
	fmt.Fprintf(out, "  output:   [%s", strings.Join(head, " "))
	if len(rec.Output) > n {
		fmt.Fprintf(out, " ... %d more", len(rec.Output)-n)
	}
	fmt.Fprintln(out, "]")
	return nil
}

func cleanRuns(in io.Reader, out io.Writer, dir string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	records, err := openRecords(dir)
	if err != nil {
		return err
	}

	infos, err := records.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n", shortID(info.RunID), info.Device, humanize.Time(info.Timestamp))
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := records.DeleteRecord(info.RunID); err != nil {
			slog.Error("Failed to delete run record", "run", info.RunID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run record", "run", info.RunID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion returns the records older than olderThanDays and the
// records beyond the newest keepLast, oldest first and without duplicates.
// Zero disables either rule.
func selectRunsForDeletion(infos []store.RecordInfo, keepLast, olderThanDays int, now time.Time) []store.RecordInfo {
	sorted := slices.Clone(infos)
	slices.SortFunc(sorted, func(a, b store.RecordInfo) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}
	cutoff := now.AddDate(0, 0, -olderThanDays)

	var toDelete []store.RecordInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		if tooOld || i < excess {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// resolveRunID expands a unique prefix, as printed by 'runs list', to a full
// run id.
func resolveRunID(records *store.FSStore, id string) (string, error) {
	if _, err := records.LoadRecord(id); err == nil || !errors.Is(err, store.ErrNotFound) {
		return id, err
	}

	infos, err := records.ListRecords()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, info := range infos {
		if strings.HasPrefix(info.RunID, id) {
			matches = append(matches, info.RunID)
		}
	}
	switch len(matches) {
	case 0:
		return "", &store.NotFoundError{Key: id}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run id prefix %q is ambiguous (%d matches)", id, len(matches))
	}
}

func statusLabel(verified bool) string {
	if verified {
		return "verified"
	}
	return "mismatch"
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
