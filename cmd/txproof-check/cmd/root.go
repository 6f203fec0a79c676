package cmd

import (
	"github.com/spf13/cobra"

	"github.com/vultisig/txproof/proof/pkg/rpc"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "txproof-check",
		Short:             "Verify Monero transfer proofs against proof services",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Version:           rpc.Version,
	}
	rootCmd.AddCommand(NewVerifyCmd())
	return rootCmd
}

func Execute() error {
	return NewRootCmd().Execute()
}
