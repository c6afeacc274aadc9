package main

import (
	"errors"
	"fmt"
	"os"

	"netrunner/internal/inputs"

	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

var rootCmd = &cobra.Command{
	Use:   "netrunner",
	Short: "Dispatch and track testnet deployment workflows",
	Long: `Netrunner dispatches the testnet GitHub Actions workflows, finds the run each
dispatch created, follows it to completion and records the deployment.

Recorded deployments can be smoke tested, grouped into comparisons and posted
to Slack.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Custom usage template that encourages 'help' subcommand pattern
const usageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} help [command]" for more information about a command.{{end}}
`

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errorKind(err), err)
		os.Exit(exitCode(err))
	}
}

func init() {
	// Set custom usage template to encourage 'help' subcommand pattern
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "workflows", Title: "Workflow Commands:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance Workflows:"},
		&cobra.Group{ID: "records", Title: "Record Commands:"},
	)

	f := rootCmd.PersistentFlags()
	f.StringVarP(&globals.configFile, "config", "c", "", "Path to netrunner.yml (default: search standard locations)")
	f.StringVar(&globals.dbPath, "db", getEnvOrDefault("NETRUNNER_DB", ""), "Path to SQLite database")
	f.StringVar(&globals.owner, "owner", getEnvOrDefault("NETRUNNER_OWNER", ""), "Repository owner of the workflows")
	f.StringVar(&globals.repo, "repo", getEnvOrDefault("NETRUNNER_REPO", ""), "Repository holding the workflows")
	f.StringVar(&globals.token, "token", "", "GitHub token (default: environment, then keyring)")
	f.StringVar(&globals.logLevel, "log-level", getEnvOrDefault("NETRUNNER_LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	f.StringVar(&globals.logFile, "log", getEnvOrDefault("NETRUNNER_LOG_FILE", ""), "Also write JSON logs to this file")

	// Register subcommands
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(upscaleCmd)
	for _, wf := range inputs.Workflows {
		rootCmd.AddCommand(newWorkflowCmd(wf))
	}
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(deploymentsCmd)
	rootCmd.AddCommand(comparisonsCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// usageError marks a bad invocation.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func isUsageError(err error) bool {
	var ue *usageError
	return errors.As(err, &ue)
}
