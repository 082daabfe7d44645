package main

import (
	"fmt"
	"time"

	"github.com/hyperengineering/syncbridge/internal/types"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and reset operation state",
	Long: `Show, unlock and reset the persisted state of an operation.

The operation defaults to import_list.`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <sync-id> [operation]",
	Short: "Show runs and lock of an operation",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStateShow,
}

var stateUnlockCmd = &cobra.Command{
	Use:   "unlock <sync-id> [operation]",
	Short: "Release a stale operation lock",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStateUnlock,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <sync-id> [operation]",
	Short: "Forget recorded runs so the next run starts from the fallback start time",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStateReset,
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateUnlockCmd)
	stateCmd.AddCommand(stateResetCmd)
}

// operationArg returns the operation named in args[1], import_list if absent.
func operationArg(args []string) (types.Operation, error) {
	if len(args) < 2 {
		return types.OperationImportList, nil
	}
	op := types.Operation(args[1])
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q", args[1])
	}
	return op, nil
}

func formatRun(r *types.Run) string {
	if r == nil {
		return "-"
	}
	s := time.Unix(r.RunTime, 0).UTC().Format(time.RFC3339)
	if r.StartTime != nil || r.EndTime != nil {
		s += fmt.Sprintf(" (window %s .. %s)", formatBound(r.StartTime), formatBound(r.EndTime))
	}
	return s
}

func formatBound(t *int64) string {
	if t == nil {
		return "open"
	}
	return time.Unix(*t, 0).UTC().Format(time.RFC3339)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	op, err := operationArg(args)
	if err != nil {
		return err
	}
	a, err := openLocalApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.state.State(cmd.Context(), args[0], op)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), st)
	}
	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(w, "Sync:\t%s\n", st.SyncID)
	fmt.Fprintf(w, "Operation:\t%s\n", st.Operation)
	fmt.Fprintf(w, "Managed:\t%t\n", st.Managed)
	fmt.Fprintf(w, "Locked:\t%t\n", st.Locked)
	fmt.Fprintf(w, "Last run:\t%s\n", formatRun(st.LastRun))
	fmt.Fprintf(w, "Current run:\t%s\n", formatRun(st.CurrentRun))
	return w.Flush()
}

func runStateUnlock(cmd *cobra.Command, args []string) error {
	op, err := operationArg(args)
	if err != nil {
		return err
	}
	a, err := openLocalApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.definitions.Get(args[0]); err != nil {
		return err
	}
	if err := a.state.Unlock(cmd.Context(), args[0], op); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s %s\n", args[0], op)
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	op, err := operationArg(args)
	if err != nil {
		return err
	}
	a, err := openLocalApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if _, err := a.definitions.Get(args[0]); err != nil {
		return err
	}
	if err := a.state.UnsetLastRun(ctx, args[0], op); err != nil {
		return err
	}
	if err := a.state.UnsetCurrentRun(ctx, args[0], op); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset runs of %s %s\n", args[0], op)
	return nil
}
