package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"prop-challenge-go/internal/market"
)

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL [SYMBOL...]",
	Short: "Resolve quotes through the price tiers and show each attempt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close(nil)

	resolver := market.NewDefaultResolver(&a.cfg.Market, a.log)
	out := cmd.OutOrStdout()
	for _, symbol := range args {
		res := resolver.ResolveDetailed(cmd.Context(), symbol)
		fmt.Fprintf(out, "%s\t%.4f\t%s\n", res.Quote.Symbol, res.Quote.Price, res.Quote.Source)
		for _, attempt := range res.Attempts {
			if attempt.Err != nil {
				fmt.Fprintf(out, "  %-18s %-9s %v\n", attempt.Tier, attempt.Outcome, attempt.Err)
				continue
			}
			fmt.Fprintf(out, "  %-18s %s\n", attempt.Tier, attempt.Outcome)
		}
	}
	return nil
}
