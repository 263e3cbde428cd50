package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nfrund/wirecall/internal/admin"
	"github.com/nfrund/wirecall/internal/registry"
)

const defaultAdminURL = "http://127.0.0.1:8090"

func newRegistryCommand() *cobra.Command {
	var adminURL string
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the bindings of a running node",
		Long: `The registry command queries the admin JSON-RPC endpoint of a running node.

Examples:
  wirecall registry list
  wirecall registry list --kind publisher --format json
  wirecall registry sessions --admin http://10.0.0.5:8090`,
	}
	registryCmd.PersistentFlags().StringVar(&adminURL, "admin", defaultAdminURL, "Base URL of the node's admin server")
	registryCmd.AddCommand(
		newRegistryListCommand(&adminURL),
		newRegistrySessionsCommand(&adminURL),
	)
	return registryCmd
}

func newRegistryListCommand(adminURL *string) *cobra.Command {
	var format, kind string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List publishers, invokers and cluster bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := admin.NewClient(*adminURL, nil).ListEntries(cmd.Context(), registry.EntryKind(kind))
			if err != nil {
				return err
			}
			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), entries)
			case "table":
				displayEntries(cmd.OutOrStdout(), entries)
				return nil
			default:
				return fmt.Errorf("unsupported output format %q, use 'table' or 'json'", format)
			}
		},
	}
	listCmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	listCmd.Flags().StringVar(&kind, "kind", "", "Only list one kind (publisher, invoker, ingress, egress)")
	return listCmd
}

func newRegistrySessionsCommand(adminURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Show the cluster sessions bound on a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := admin.NewClient(*adminURL, nil).Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if !reply.Clustered {
				fmt.Fprintln(cmd.OutOrStdout(), "Node hosts no cluster container")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingress=%d egress=%d\n", reply.Stats.Ingress, reply.Stats.Egress)
			return nil
		},
	}
}

func displayEntries(out io.Writer, entries []registry.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KIND\tINTERFACE\tLOCATION\tFINGERPRINT")
	fmt.Fprintln(w, "----\t---------\t--------\t-----------")
	if len(entries) == 0 {
		fmt.Fprintln(w, "No bindings found")
		return
	}
	for _, e := range entries {
		location := e.Token
		if e.Channel != nil {
			location = e.Channel.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Kind, e.Interface, location, e.Fingerprint)
	}
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
