package main

import (
	"context"
	"fmt"

	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/kenneth/identity-helper/internal/gateway"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newKeygenCmd() *cobra.Command {
	var (
		withGateway bool
		rootFolder  string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate helper and gateway key pairs as a config fragment",
		Long: `keygen mints the helper's signing and encryption key pairs, and a gateway
pair to go with them, using the local oracle. The output is an identity:
section ready to paste into config.yaml. With --with-gateway-private the
gateway private keys are appended, which the load generator reads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kf, err := gateway.GenerateKeyFile(context.Background(), crypto.NewLocalOracle(), rootFolder)
			if err != nil {
				return err
			}
			if !withGateway {
				kf.Gateway = nil
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(kf); err != nil {
				return fmt.Errorf("failed to encode keys: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&withGateway, "with-gateway-private", false, "Also print the gateway private keys (development only)")
	cmd.Flags().StringVar(&rootFolder, "root", "data", "Root data folder to put in the fragment")
	return cmd
}
