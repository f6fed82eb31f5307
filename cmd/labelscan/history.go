package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/labelscan/internal/history"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or edit the local scan history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past scans, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyRemoveCmd = &cobra.Command{
	Use:   "rm <scan-id>",
	Short: "Remove one scan from history",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRemove,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every scan from history",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyRemoveCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func openHistory(ctx context.Context) (*history.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return history.OpenSQLite(ctx, historyPath, historyLimit)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	results, err := h.List(ctx, localOwner)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No scans yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCANNED\tFILE\tINGREDIENTS\tFLAGGED")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
			r.ID, r.Timestamp.Local().Format("2006-01-02 15:04"), r.OriginalImageFileName,
			len(r.ExtractedIngredients), countFlagged(r.ExtractedIngredients))
	}
	return tw.Flush()
}

func runHistoryRemove(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid scan id %q: %w", args[0], err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.RemoveByID(ctx, localOwner, id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("scan %s is not in history", id)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.Clear(ctx, localOwner); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
	return nil
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

func countFlagged(ings []models.Ingredient) int {
	n := 0
	for _, ing := range ings {
		if ing.RiskLevel.Flagged() {
			n++
		}
	}
	return n
}
