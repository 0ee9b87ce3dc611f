package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/shellboot/internal/config"
	"github.com/nupi-ai/shellboot/internal/version"
)

// OutputFormatter handles output in JSON or human-readable format.
type OutputFormatter struct {
	jsonMode bool
	out      io.Writer
	errOut   io.Writer
}

// newOutputFormatter creates a formatter based on the command's --json flag.
func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{jsonMode: jsonMode, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
}

// Print outputs data in the appropriate format. Strings print as-is in
// text mode; everything else falls back to indented JSON.
func (f *OutputFormatter) Print(data any) error {
	if s, ok := data.(string); ok && !f.jsonMode {
		_, err := fmt.Fprintln(f.out, s)
		return err
	}
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(f.out, string(jsonBytes))
	return err
}

// Success outputs a success message.
func (f *OutputFormatter) Success(message string, data map[string]any) error {
	if f.jsonMode {
		output := map[string]any{
			"success": true,
			"message": message,
		}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	_, err := fmt.Fprintln(f.out, message)
	return err
}

// Error outputs an error message and returns it wrapped.
func (f *OutputFormatter) Error(message string, err error) error {
	if f.jsonMode {
		output := map[string]any{
			"success": false,
			"error":   message,
		}
		if err != nil {
			output["details"] = err.Error()
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(f.errOut, string(jsonBytes))
	} else if err != nil {
		fmt.Fprintf(f.errOut, "%s: %v\n", message, err)
	} else {
		fmt.Fprintln(f.errOut, message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shellboot",
		Short: "shellboot - bootstrap and plugin resolver for the GeoNode app shell",
		Long: `shellboot loads the backend endpoints, local configuration and account of a
GeoNode instance, derives the runtime configuration of the dashboard shell and
mounts it, resolving the plugins of each page for the current UI mode.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (default $SHELLBOOT_HOME/config.yaml)")

	rootCmd.AddCommand(
		newRunCommand(),
		newPluginsCommand(),
		newResourcesCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

// loadConfig reads the configuration named by the --config flag.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func commandLogger(cmd *cobra.Command) *log.Logger {
	return log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
