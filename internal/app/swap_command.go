package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/swapd/internal/aggregator"
	"github.com/ggonzalez94/swapd/internal/chain"
	"github.com/ggonzalez94/swapd/internal/chain/signer"
	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/httpx"
	"github.com/ggonzalez94/swapd/internal/journal"
	"github.com/ggonzalez94/swapd/internal/out"
	"github.com/ggonzalez94/swapd/internal/registry"
	"github.com/ggonzalez94/swapd/internal/swap"
	"github.com/ggonzalez94/swapd/internal/trace"
)

type swapOutput struct {
	AttemptID  string                      `json:"attemptId"`
	Mode       string                      `json:"mode"`
	DestAmount string                      `json:"destAmount"`
	TxData     *aggregator.SwapTransaction `json:"txData,omitempty"`
	TxHash     string                      `json:"hash,omitempty"`
	Block      uint64                      `json:"block,omitempty"`
	TxStatus   uint64                      `json:"status,omitempty"`
	Trace      []trace.Entry               `json:"logs"`
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var (
		wallet      string
		tokenFrom   string
		tokenTo     string
		amountWei   string
		slippageBps int64
		excludeDEXs []string
		unsigned    bool
	)
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute one token swap through the aggregation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orch, err := s.buildOrchestrator(ctx, unsigned)
			if err != nil {
				return err
			}

			attemptID := journal.NewAttemptID()
			rec := trace.NewWithLogger(s.logger.WithField("attemptId", attemptID))
			req := swap.Request{
				Wallet:       wallet,
				TokenFrom:    tokenFrom,
				TokenTo:      tokenTo,
				AmountWei:    amountWei,
				SlippageBps:  slippageBps,
				ExcludeDEXs:  excludeDEXs,
				UnsignedOnly: unsigned,
			}

			result, execErr := orch.Execute(ctx, req, rec)
			s.journalSwap(attemptID, req, result, rec, execErr)
			if execErr != nil {
				return execErr
			}

			return out.Render(s.runner.stdout, swapOutput{
				AttemptID:  attemptID,
				Mode:       result.Mode,
				DestAmount: result.DestAmount,
				TxData:     result.TxData,
				TxHash:     result.Hash,
				Block:      result.Block,
				TxStatus:   result.Status,
				Trace:      rec.Entries(),
			}, s.settings.OutputMode)
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "Wallet address executing the swap")
	cmd.Flags().StringVar(&tokenFrom, "token-from", "", "Source token contract address")
	cmd.Flags().StringVar(&tokenTo, "token-to", "", "Destination token contract address")
	cmd.Flags().StringVar(&amountWei, "amount", "", "Source amount in base units")
	cmd.Flags().Int64Var(&slippageBps, "slippage-bps", 100, "Slippage tolerance in basis points (1-2000)")
	cmd.Flags().StringSliceVar(&excludeDEXs, "exclude-dexs", nil, "Exchanges to exclude from routing")
	cmd.Flags().BoolVar(&unsigned, "unsigned", false, "Stop after building the transaction; never sign or broadcast")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("token-from")
	_ = cmd.MarkFlagRequired("token-to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// buildOrchestrator wires the quote client and, for signed runs, the chain
// connection and signing identity.
func (s *runtimeState) buildOrchestrator(ctx context.Context, unsigned bool) (*swap.Orchestrator, error) {
	httpClient := httpx.New(s.settings.HTTPTimeout)
	agg := aggregator.New(httpClient, s.settings.AggregatorBaseURL, s.settings.Partner)

	if unsigned {
		return swap.NewOrchestrator(agg, nil, nil, s.settings.ChainID), nil
	}

	localSigner, err := signer.NewLocalSignerFromEnv(s.settings.KeySource)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindSigningIdentityMissing, "load signing identity", err)
	}
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.ChainID)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindUsage, "resolve rpc endpoint", err)
	}
	chainClient, err := chain.Dial(ctx, rpcURL, chain.Options{
		PollInterval:  s.settings.PollInterval,
		StepTimeout:   s.settings.StepTimeout,
		GasMultiplier: s.settings.GasMultiplier,
	})
	if err != nil {
		return nil, err
	}
	return swap.NewOrchestrator(agg, chainClient, localSigner, s.settings.ChainID), nil
}

func (s *runtimeState) journalSwap(attemptID string, req swap.Request, result *swap.Result, rec *trace.Recorder, execErr error) {
	store := s.openJournal()
	if store == nil {
		return
	}
	attempt := journal.Attempt{
		AttemptID:   attemptID,
		Wallet:      req.Wallet,
		SrcToken:    req.TokenFrom,
		DestToken:   req.TokenTo,
		SrcAmount:   req.AmountWei,
		Trace:       rec.Entries(),
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if req.UnsignedOnly {
		attempt.Mode = swap.ModeUnsigned
	} else {
		attempt.Mode = swap.ModeSigned
	}
	if execErr != nil {
		attempt.Status = journal.StatusFailed
		attempt.Error = execErr.Error()
	} else {
		attempt.Status = journal.StatusSucceeded
		attempt.DestAmount = result.DestAmount
		attempt.TxHash = result.Hash
	}
	if err := store.Save(attempt); err != nil {
		s.logger.WithError(err).WithField("attemptId", attemptID).Warn("failed to journal attempt")
	}
}
