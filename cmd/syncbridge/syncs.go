package main

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/syncbridge/internal/types"
	"github.com/spf13/cobra"
)

var syncsCmd = &cobra.Command{
	Use:   "syncs",
	Short: "Inspect synchronization definitions",
}

var syncsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded synchronization definitions",
	Args:  cobra.NoArgs,
	RunE:  runSyncsList,
}

func init() {
	syncsCmd.AddCommand(syncsListCmd)
}

func runSyncsList(cmd *cobra.Command, args []string) error {
	a, err := openLocalApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	syncs := a.definitions.List()

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"syncs": syncs,
			"total": len(syncs),
		})
	}

	if len(syncs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No synchronizations found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tENTITY\tCLIENT\tOPERATIONS")
	for _, s := range syncs {
		entity := s.LocalEntity.Type
		if s.LocalEntity.Bundle != "" {
			entity += "/" + s.LocalEntity.Bundle
		}
		client := s.RemoteResource.Client.Type
		if s.RemoteResource.Client.Name != "" {
			client += ":" + s.RemoteResource.Client.Name
		}
		if client == "" {
			client = "-"
		}
		var ops []string
		for _, op := range types.Operations {
			if s.OperationEnabled(op) {
				ops = append(ops, string(op))
			}
		}
		opList := "-"
		if len(ops) > 0 {
			opList = strings.Join(ops, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, entity, client, opList)
	}
	return w.Flush()
}
