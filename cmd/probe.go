package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/probe"
	"github.com/codeqa/codeqa/internal/report"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether local development servers respond",
	Long: `Send one GET request to each port on the configured host and report
reachability, status, latency and any detected frontend framework.

Examples:
  codeqa probe --ports 3000,5173,8000
  codeqa probe --ports 8080 --format markdown`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().IntSlice("ports", nil, "ports to probe (e.g. 3000,8000)")
	_ = probeCmd.MarkFlagRequired("ports")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ports, _ := cmd.Flags().GetIntSlice("ports")

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	results := probe.NewProber(&cfg.Probe, newLogger(cmd)).Probe(ctx, ports)

	format, _ := cmd.Flags().GetString("format")
	output, err := report.FormatProbes(format, results)
	if err != nil {
		return fmt.Errorf("failed to format probe results: %w", err)
	}
	return writeOutput(cmd, output)
}
