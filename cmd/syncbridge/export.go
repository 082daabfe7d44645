package main

import (
	"fmt"

	"github.com/hyperengineering/syncbridge/internal/types"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <sync-id> <entity-id>",
	Short: "Export a local entity to its remote resource",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openLocalApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.definitions.Get(args[0])
	if err != nil {
		return err
	}
	local, err := a.store.Load(ctx, s.LocalEntity.Type, args[1])
	if err != nil {
		return err
	}

	res, err := a.exporter.ExportLocalEntity(ctx, s.ID, local, types.ExportOptions{
		Context: map[string]any{"source": "cli"},
	})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	if res.RemoteID == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Entity %s: %s\n", args[1], res.Action)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Entity %s: %s remote %s\n", args[1], res.Action, res.RemoteID)
	return nil
}
