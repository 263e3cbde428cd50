package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/wirecall/internal/registry"
)

func newNamingCommand() *cobra.Command {
	namingCmd := &cobra.Command{
		Use:   "naming",
		Short: "Build and parse cluster session principal tokens",
		Long: `Cluster clients identify themselves with a principal token of the form
"<interface>__<role>". The cluster binds the session to the interface's ingress
invoker or egress publication based on that token.

Examples:
  wirecall naming build SimpleEvents
  wirecall naming parse SimpleEvents__IngressPublisher`,
	}
	namingCmd.AddCommand(newNamingBuildCommand(), newNamingParseCommand())
	return namingCmd
}

func newNamingBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build <interface>",
		Short: "Print every principal token of an interface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iface := args[0]
			if err := registry.ValidateInterfaceName(iface); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, registry.IngressPublisherName(iface))
			fmt.Fprintln(out, registry.EgressPublisherName(iface))
			fmt.Fprintln(out, registry.EgressSubscriberName(iface))
			return nil
		},
	}
}

func newNamingParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <token>",
		Short: "Split a principal token into interface and role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iface, role, err := registry.ParseName(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "interface=%s role=%s\n", iface, role)
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			return nil
		},
	}
}
