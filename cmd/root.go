package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/report"
)

// Version can be set at build time using ldflags
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "codeqa",
	Short: "Static code quality and security checks for a project directory",
	Long: `codeqa inspects a project directory and reports on its structure,
syntax, security patterns, declared dependencies and general hygiene.
It can also check whether local development servers respond.

Every category is scored from 1 to 10 and combined into a weighted
overall score.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if !report.ValidFormat(format) {
			return fmt.Errorf("unknown output format %q (expected one of %v)", format, report.Formats)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("codeqa - Use 'codeqa help' for available commands")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is .codeqa.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "table", "output format (table, json, markdown, yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codeqa version %s\n", Version)
		},
	})
}

// loadConfig reads the --config file, or .codeqa.yaml from . or $HOME.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) *logging.SlogLogger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return logging.New(cmd.ErrOrStderr(), verbose)
}

// writeOutput prints content, or writes it to the --output file.
func writeOutput(cmd *cobra.Command, content string) error {
	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	}

	if err := writeOutputToFile(content, outputPath); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to: %s\n", outputPath)
	}
	return nil
}

func writeOutputToFile(content, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0644)
}
