package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/analyzer"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the security rules in effect",
	Long: `List the built-in security rules plus any declared in the config file,
minus those disabled there, in the order they are evaluated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		catalog, err := analyzer.NewCatalog(&cfg.Security)
		if err != nil {
			return err
		}

		var output strings.Builder
		for _, rule := range catalog.Rules() {
			output.WriteString(fmt.Sprintf("%-26s %-8s %s\n", rule.ID, rule.Severity, rule.Message))
		}
		output.WriteString(fmt.Sprintf("\n%d rules\n", catalog.Len()))
		return writeOutput(cmd, output.String())
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
