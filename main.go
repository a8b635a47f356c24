package main

import (
	"os"

	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	// initialize logging (LOG_LEVEL env: debug|info|warn|error|fatal); serve
	// re-applies the configured level once config is loaded
	logger.Init(os.Getenv("LOG_LEVEL"))

	root := &cobra.Command{
		Use:           "draftledger",
		Short:         "Versioned document service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newRevokeTokenCmd(), newIssueTokenCmd())

	if err := root.Execute(); err != nil {
		logger.Fatalf("%v", err)
	}
}
