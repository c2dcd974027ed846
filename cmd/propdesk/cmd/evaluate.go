package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"prop-challenge-go/internal/challenge"
	"prop-challenge-go/internal/market"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate CHALLENGE_ID",
	Short: "Re-run the risk rules against a challenge's stored equity",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid challenge id %q", args[0])
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	store, db, err := a.openStore()
	if err != nil {
		return err
	}
	defer a.close(db)

	// Rule evaluation never prices anything.
	offline := a.cfg.Market
	offline.Offline = true
	engine := challenge.NewEngine(a.log, &a.cfg, store, market.NewDefaultResolver(&offline, a.log))
	out, err := engine.EvaluateRules(cmd.Context(), uint(id))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "challenge %d: %s\n", id, out.Status)
	if out.Reason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  reason: %s\n", out.Reason)
	}
	if out.Detail != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  detail: %s\n", out.Detail)
	}
	return nil
}
