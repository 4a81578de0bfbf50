package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/flowbit/invoice-engine/internal/engine"
	"github.com/flowbit/invoice-engine/internal/model"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch [invoice-id...]",
	Short: "Run the correction pipeline over many invoices",
	Long:  "Processes the given invoice ids, or every stored invoice when none are given. Individual failures are logged without aborting the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ids := args
		if len(ids) == 0 {
			invoices, err := st.ListInvoices(ctx)
			if err != nil {
				return eris.Wrap(err, "list invoices")
			}
			for _, inv := range invoices {
				ids = append(ids, inv.InvoiceID)
			}
		}

		eng := engine.New(st, cfg.Engine)
		return processBatch(ctx, eng, ids, batchLimit, cfg.Batch.MaxConcurrentInvoices, cfg.Batch.InvoicesPerSecond)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of invoices to process (0 = no limit)")
	rootCmd.AddCommand(batchCmd)
}

// processor runs the pipeline for one invoice id.
type processor interface {
	ProcessInvoice(ctx context.Context, invoiceID string) (*model.EngineOutput, error)
}

// processBatch applies limit, then processes invoices concurrently under a
// shared rate limit. Individual failures do not abort the batch.
func processBatch(ctx context.Context, eng processor, ids []string, limit, concurrency int, perSecond float64) error {
	if len(ids) == 0 {
		zap.L().Info("no invoices to process")
		return nil
	}

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("invoices", len(ids)),
		zap.Int("concurrency", concurrency),
	)

	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed, missing atomic.Int64

	for _, id := range ids {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return eris.Wrap(err, "rate limiter")
			}

			log := zap.L().With(zap.String("invoice_id", id))

			out, err := eng.ProcessInvoice(gctx, id)
			if err != nil {
				failed.Add(1)
				log.Error("processing failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			if out == nil {
				missing.Add(1)
				log.Warn("invoice not found")
				return nil
			}

			succeeded.Add(1)
			log.Info("processing complete",
				zap.Float64("confidence", out.ConfidenceScore),
				zap.Bool("requires_review", out.RequiresHumanReview),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Int64("missing", missing.Load()),
	)
	return nil
}
