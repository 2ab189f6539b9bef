package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/joshp123/smartlicensing/internal/config"
	"github.com/joshp123/smartlicensing/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "smartlic",
	Short: "Offline Smart Licensing reservations for air-gapped routers",
	Long: `smartlic reserves, reports usage for and removes Smart Licensing
authorizations on behalf of devices that cannot reach the licensing cloud.

Settings are read from the environment and from a .env file in the
working directory.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(workflowCmd(config.WorkflowReserve,
		"Reserve a license authorization code for the device",
		(*workflow.Runner).Reserve))
	rootCmd.AddCommand(workflowCmd(config.WorkflowReportUsage,
		"Upload the device usage report and save the acknowledgement",
		(*workflow.Runner).ReportUsage))
	rootCmd.AddCommand(workflowCmd(config.WorkflowRemove,
		"Return the device license reservation using its removal code",
		(*workflow.Runner).Remove))
}
