package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newOracleCmd(logger *logrus.Logger) *cobra.Command {
	var (
		listen      string
		serviceName string
	)

	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Serve the local cryptography oracle over gRPC",
		Long: `oracle serves the in-process ML-KEM/ML-DSA oracle on the same gRPC contract
the helper expects from its production oracle. Intended for development.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}

			local := crypto.NewLocalOracle()
			server := crypto.NewOracleServer(local, local, serviceName)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(quit)
			go func() {
				<-quit
				logger.Info("Stopping oracle")
				server.GracefulStop()
			}()

			// Always visible, regardless of log level.
			fmt.Fprintf(cmd.ErrOrStderr(), "oracle %s listening on %s\n", serviceName, lis.Addr())
			return server.Serve(lis)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "localhost:50051", "Address to listen on")
	cmd.Flags().StringVar(&serviceName, "service-name", crypto.DefaultServiceName, "gRPC service name")
	return cmd
}
