package main

import (
	"os"

	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {

	var apiListenAddr string
	var mgmtListenAddr string

	var rootCmd = &cobra.Command{
		Use: "channel-connector",
	}

	var apiServerCmd = &cobra.Command{
		Use:   "api_server",
		Short: "Channel-Connector API / realtime / webhook server",
		Run: func(cmd *cobra.Command, args []string) {
			startChannelConnectorApiServer(apiListenAddr, mgmtListenAddr)
		},
	}

	var generateJwtCmd = &cobra.Command{
		Use:   "generate_jwt <tenant_id> <user_id> [role]",
		Short: "Generate a signed bearer token for the given tenant and user",
		Args:  cobra.RangeArgs(2, 3),
		Run: func(cmd *cobra.Command, args []string) {
			role := ""
			if len(args) > 2 {
				role = args[2]
			}
			generateJwtToken(args[0], args[1], role)
		},
	}

	rootCmd.AddCommand(apiServerCmd)
	apiServerCmd.Flags().StringVarP(&apiListenAddr, "listen-addr", "l", ":8080", "Hostname:port")
	apiServerCmd.Flags().StringVarP(&mgmtListenAddr, "mgmt-addr", "m", ":9090", "Hostname:port")

	rootCmd.AddCommand(generateJwtCmd)

	return rootCmd
}

func main() {
	logger.InitLogger()
	defer logger.FlushLogger()

	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		logger.FlushLogger()
		os.Exit(1)
	}
}
