package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealscope/valuation-engine/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate [ruleset-file]",
	Short: "Validate a ruleset definition",
	Long: `Validate a ruleset definition file before deploying it.

The validator checks:
  - Condition tree structure (leaves vs groups, known operators)
  - Field types on every leaf
  - Action configuration (fixed, percentage, formula)
  - Group and rule naming

Examples:
  valuationctl validate ruleset.json
  valuationctl validate gpu-premiums.json --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filename := args[0]

		if _, err := os.Stat(filename); os.IsNotExist(err) {
			fmt.Printf("Error: file %q not found\n", filename)
			os.Exit(1)
		}

		result, err := cli.ValidateRulesetFile(filename)
		if err != nil {
			fmt.Printf("Error validating ruleset: %v\n", err)
			os.Exit(1)
		}

		if outputJSON {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
		} else {
			outputValidationText(result, filename)
		}

		if !result.Valid {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func outputValidationText(result *cli.ValidationResult, filename string) {
	fmt.Printf("Validating ruleset: %s\n", filename)
	fmt.Printf("  %d group(s), %d rule(s)\n\n", result.Groups, result.Rules)

	if result.Valid {
		fmt.Println("Ruleset is valid")
	} else {
		fmt.Printf("Validation failed with %d error(s):\n", len(result.Errors))
		for i, err := range result.Errors {
			fmt.Printf("  %d. %s\n", i+1, err)
		}
	}

	for _, warning := range result.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}
