package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dealscope/valuation-engine/internal/cli"
	"github.com/dealscope/valuation-engine/internal/models"
)

var (
	recalcSync    bool
	recalcRuleset bool
)

var recalcCmd = &cobra.Command{
	Use:   "recalc [id]",
	Short: "Recalculate adjusted prices",
	Long: `Schedule an asynchronous recalculation for a listing (or, with
--ruleset, for every listing a ruleset's scope covers), or run a
synchronous evaluation with --sync and print the resulting breakdown.

Examples:
  valuationctl recalc 4f9d5c1e-...
  valuationctl recalc 4f9d5c1e-... --sync --json
  valuationctl recalc 7a21b3c0-... --ruleset`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := uuid.Parse(args[0])
		if err != nil {
			fmt.Printf("Error: invalid id %q\n", args[0])
			os.Exit(1)
		}

		client := cli.NewClient(apiURL, apiToken)

		if recalcRuleset {
			if err := client.RecalculateRuleset(id); err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Recalculation scheduled for ruleset %s\n", id)
			return
		}

		if recalcSync {
			breakdown, err := client.Evaluate(id)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			printBreakdown(breakdown)
			return
		}

		if err := client.Recalculate(id); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Recalculation scheduled for listing %s\n", id)
	},
}

var breakdownCmd = &cobra.Command{
	Use:   "breakdown [listing-id]",
	Short: "Show the latest persisted breakdown for a listing",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		listingID, err := uuid.Parse(args[0])
		if err != nil {
			fmt.Printf("Error: invalid listing id %q\n", args[0])
			os.Exit(1)
		}

		client := cli.NewClient(apiURL, apiToken)
		breakdown, err := client.GetBreakdown(listingID)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		printBreakdown(breakdown)
	},
}

func init() {
	recalcCmd.Flags().BoolVar(&recalcSync, "sync", false, "Evaluate synchronously and print the breakdown")
	recalcCmd.Flags().BoolVar(&recalcRuleset, "ruleset", false, "Treat the id as a ruleset and recalculate its scope")
	rootCmd.AddCommand(recalcCmd)
	rootCmd.AddCommand(breakdownCmd)
}

func printBreakdown(breakdown *models.EvaluationBreakdown) {
	if outputJSON {
		data, _ := json.MarshalIndent(breakdown, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Listing %s\n", breakdown.ListingID)
	fmt.Printf("Adjusted price: %.2f\n", breakdown.AdjustedPrice)
	fmt.Printf("Rules fired: %d\n\n", breakdown.RulesFired())

	for _, entry := range breakdown.Entries {
		ruleLabel := "-"
		if entry.RuleID != nil {
			ruleLabel = entry.RuleID.String()
		}
		fmt.Printf("  %-20s rule=%s delta=%+.2f total=%.2f\n",
			entry.Reason, ruleLabel, entry.Delta, entry.RunningTotal)
	}
}
