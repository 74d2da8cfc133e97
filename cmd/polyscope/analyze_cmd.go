package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"polyscope/analyze"
	"polyscope/config"
	"polyscope/model"
	"polyscope/score"
)

// sharedFlags are the flags common to analyze and investigate (spec
// §6): market id, time window, outcome filter, max trades, top-N,
// role, verbose.
type sharedFlags struct {
	marketID     string
	from, to     int64
	outcomeIndex int
	maxTrades    int
	topN         int
	role         string
	verbose      bool
}

func addSharedFlags(cmd *cobra.Command, f *sharedFlags) {
	cmd.Flags().StringVar(&f.marketID, "market", "", "market token id (required)")
	cmd.Flags().Int64Var(&f.from, "from", 0, "window start, unix seconds (0 = unbounded)")
	cmd.Flags().Int64Var(&f.to, "to", 0, "window end, unix seconds (0 = unbounded)")
	cmd.Flags().IntVar(&f.outcomeIndex, "outcome", -1, "restrict to one outcome index (0 or 1); unset means both sides")
	cmd.Flags().IntVar(&f.maxTrades, "max-trades", 0, "cap on reconstructed trades considered (0 = unbounded)")
	cmd.Flags().IntVar(&f.topN, "top", 20, "report at most this many scored trades")
	cmd.Flags().StringVar(&f.role, "role", "both", "restrict to one wallet role: maker, taker, or both")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "print non-alert scored trades too (analyze scores only alerts; investigate always prints every trade)")
	cmd.MarkFlagRequired("market")
}

func (f *sharedFlags) toRequest() (analyze.Request, error) {
	role := model.Role(f.role)
	switch role {
	case model.RoleMaker, model.RoleTaker, model.RoleBoth:
	default:
		return analyze.Request{}, fmt.Errorf("invalid --role %q: must be maker, taker, or both", f.role)
	}

	outcome, err := f.parseOutcome()
	if err != nil {
		return analyze.Request{}, err
	}

	return analyze.Request{
		MarketID:     f.marketID,
		OutcomeIndex: outcome,
		From:         f.from,
		To:           f.to,
		Role:         role,
		MaxTrades:    f.maxTrades,
		TopN:         f.topN,
	}, nil
}

// parseOutcome resolves the --outcome flag's sentinel default (-1,
// meaning both sides) into an optional pointer.
func (f *sharedFlags) parseOutcome() (*int, error) {
	if f.outcomeIndex < 0 {
		return nil, nil
	}
	if f.outcomeIndex > 1 {
		return nil, fmt.Errorf("invalid --outcome %d: must be 0 or 1", f.outcomeIndex)
	}
	idx := f.outcomeIndex
	return &idx, nil
}

func newAnalyzeCmd() *cobra.Command {
	var f sharedFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Scan a market for suspicious trades across all wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.toRequest()
			if err != nil {
				return err
			}
			return runAnalyze(cmd, req, f.verbose)
		},
	}
	addSharedFlags(cmd, &f)
	return cmd
}

func newInvestigateCmd() *cobra.Command {
	var f sharedFlags
	var wallet string
	cmd := &cobra.Command{
		Use:   "investigate",
		Short: "Report every trade for one wallet on a market, regardless of score",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.toRequest()
			if err != nil {
				return err
			}
			if wallet == "" {
				return fmt.Errorf("--wallet is required")
			}
			req.Wallet = wallet
			return runAnalyze(cmd, req, true)
		},
	}
	addSharedFlags(cmd, &f)
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address to investigate (required)")
	cmd.MarkFlagRequired("wallet")
	return cmd
}

func runAnalyze(cmd *cobra.Command, req analyze.Request, verbose bool) error {
	cfg := config.LoadFromEnv()
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.st.Close()

	res, err := d.analyze.Analyze(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	fmt.Printf("considered %d trades, %d candidates, %d reported\n", res.TradesConsidered, res.Candidates, len(res.Scored))
	for _, s := range res.Scored {
		if !s.IsAlert && !verbose {
			continue
		}
		printScored(s)
	}
	return nil
}

func printScored(s score.Scored) {
	marker := "    "
	if s.IsAlert {
		marker = "ALRT"
	}
	fmt.Printf("[%s] score=%-3d wallet=%-42s side=%-4s value=%-14s tags=%v\n",
		marker, s.Total, s.Trade.Wallet, s.Trade.Side, s.Trade.TotalValueUSD, s.Tags)
}
