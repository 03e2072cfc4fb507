package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var (
	globalInstanceName string
	globalRedisURL     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "muster",
	Short: "Muster - execution claim queue and resource tooling",
	Long: `Muster inspects and operates the execution claim queue shared by
scheduler workers, computes and checks resource UIDs, and redacts secret
parameters from resource documents.

Instance and Redis location default to MUSTER_INSTANCE_NAME and
MUSTER_REDIS_URL and can be overridden per command.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalInstanceName, "name", "n", "", "Target instance name (default $MUSTER_INSTANCE_NAME)")
	rootCmd.PersistentFlags().StringVar(&globalRedisURL, "redis-url", "", "Redis URL (default $MUSTER_REDIS_URL)")
}
