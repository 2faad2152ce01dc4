package main

import (
	"fmt"
	"os"

	"github.com/jalsakhi/model-gateway/cmd/gatewayctl/commands"
	"github.com/jalsakhi/model-gateway/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var rootCmd = &cobra.Command{
		Use:          "gatewayctl",
		Short:        "Operator tool for the model gateway",
		Long:         "CLI tool for verifying a running gateway and inspecting its mount table",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(commands.NewCheckCmd())
	rootCmd.AddCommand(commands.NewMountsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
