package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the device identity",
	Long: `Print the identity the node uses as its broker client ID: the hex of the
hardware MAC address and the name-based UUID derived from it.`,
	Args: cobra.NoArgs,
	RunE: printIdentity,
}

func init() {
	rootCmd.AddCommand(identityCmd)

	identityCmd.Flags().String("interface", defaultInterface, "read the MAC of this interface")
	identityCmd.Flags().Bool("simulate", false, "derive the identity from a fake MAC")
	identityCmd.Flags().Uint64("seed", 0, "seed for the fake MAC (0 is random)")
}

// identityOptions reads the subset of run options that select the identity.
func identityOptions(cmd *cobra.Command) runOptions {
	flags := cmd.Flags()
	name, _ := flags.GetString("interface")
	simulate, _ := flags.GetBool("simulate")
	seed, _ := flags.GetUint64("seed")
	return runOptions{Simulate: simulate, Seed: seed, Interface: name}
}

func printIdentity(cmd *cobra.Command, _ []string) error {
	id, err := deviceIdentity(identityOptions(cmd))
	if err != nil {
		return fmt.Errorf("device identity: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:        %s\n", id.ID)
	fmt.Fprintf(out, "uuid:      %s\n", id.UUID)
	if id.Interface != "" {
		fmt.Fprintf(out, "interface: %s\n", id.Interface)
	}
	return nil
}
