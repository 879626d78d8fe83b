package app

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/swapd/internal/aggregator"
	"github.com/ggonzalez94/swapd/internal/chain"
	"github.com/ggonzalez94/swapd/internal/chain/signer"
	"github.com/ggonzalez94/swapd/internal/httpx"
	"github.com/ggonzalez94/swapd/internal/registry"
	"github.com/ggonzalez94/swapd/internal/server"
	"github.com/ggonzalez94/swapd/internal/swap"
)

func (s *runtimeState) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the swap HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			httpClient := httpx.New(s.settings.HTTPTimeout)
			agg := aggregator.New(httpClient, s.settings.AggregatorBaseURL, s.settings.Partner)

			// Signed requests need a chain connection and a signing key. When
			// either is absent the server still comes up and serves unsigned
			// quotes; signed requests fail with SigningIdentityMissing.
			var orch *swap.Orchestrator
			localSigner, signerErr := signer.NewLocalSignerFromEnv(s.settings.KeySource)
			if signerErr != nil {
				s.logger.WithError(signerErr).Warn("no signing identity; serving unsigned swaps only")
			}
			var chainClient *chain.Client
			if signerErr == nil {
				rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.ChainID)
				if err != nil {
					return err
				}
				chainClient, err = chain.Dial(ctx, rpcURL, chain.Options{
					PollInterval:  s.settings.PollInterval,
					StepTimeout:   s.settings.StepTimeout,
					GasMultiplier: s.settings.GasMultiplier,
				})
				if err != nil {
					return err
				}
			}
			if chainClient != nil && localSigner != nil {
				orch = swap.NewOrchestrator(agg, chainClient, localSigner, s.settings.ChainID)
			} else {
				orch = swap.NewOrchestrator(agg, nil, nil, s.settings.ChainID)
			}

			handlers := &server.Handlers{
				Swapper: orch,
				Logger:  s.logger,
				DevMode: s.settings.DevMode,
			}
			if store := s.openJournal(); store != nil {
				handlers.Journal = store
			}

			srv := server.New(handlers, server.Config{
				Addr:    s.settings.ListenAddr,
				DevMode: s.settings.DevMode,
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()
			s.logger.WithField("addr", s.settings.ListenAddr).Info("swap API listening")

			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			case <-ctx.Done():
				s.logger.Info("shutting down")
				return srv.Shutdown(context.Background())
			}
		},
	}
	cmd.Flags().StringVar(&s.flags.ListenAddr, "listen", "", "Listen address (default :8080)")
	return cmd
}
