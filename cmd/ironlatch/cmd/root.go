package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ironlatch",
	Short: "Ironlatch is an account and session management service",
	Long: `A server-side session management service: account registration, login,
rolling session renewal, password reset, and an append-only login/logout
audit trail. Complete documentation is available at
https://github.com/jmcleod/ironlatch`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
