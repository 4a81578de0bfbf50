// Package engine implements the invoice correction pipeline: recall learned
// vendor memory, apply correction rules, decide whether the result can be
// auto-approved, and reinforce memory from human feedback.
package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flowbit/invoice-engine/internal/config"
	"github.com/flowbit/invoice-engine/internal/model"
	"github.com/flowbit/invoice-engine/internal/store"
)

// Engine runs the four pipeline stages for one invoice at a time. Instances
// are safe for concurrent use; reinforcement for the same (vendor, field)
// pair is serialized internally.
type Engine struct {
	cfg   config.EngineConfig
	store store.Store
	rules *Registry
	locks keyedMutex
}

// New creates an Engine with the default rule catalogue.
func New(st store.Store, cfg config.EngineConfig) *Engine {
	return &Engine{
		cfg:   cfg,
		store: st,
		rules: DefaultRegistry(),
	}
}

// ProcessInvoice runs recall, rule application, decision, and learning in
// strict sequence for the given invoice, persists the accumulated audit
// trail, and returns the engine output. An unknown invoice id returns
// (nil, nil). If the final audit append fails, the computed output is
// returned together with the error; the durable trail is incomplete.
func (e *Engine) ProcessInvoice(ctx context.Context, invoiceID string) (*model.EngineOutput, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: fetch invoice %s", invoiceID)
	}
	if inv == nil {
		return nil, nil
	}

	log := zap.L().With(
		zap.String("invoice_id", inv.InvoiceID),
		zap.String("vendor", inv.Vendor),
	)

	memory, recallAudit, err := e.recall(ctx, inv)
	if err != nil {
		return nil, err
	}

	normalized, proposed, applied, applyAudit := e.apply(inv, memory)

	decision, decideAudit := e.decide(inv, memory, applied)

	updates, learnAudit, err := e.learn(ctx, inv)
	if err != nil {
		return nil, err
	}

	trail := make([]model.AuditEntry, 0, len(recallAudit)+len(applyAudit)+len(decideAudit)+len(learnAudit))
	trail = append(trail, recallAudit...)
	trail = append(trail, applyAudit...)
	trail = append(trail, decideAudit...)
	trail = append(trail, learnAudit...)

	out := &model.EngineOutput{
		NormalizedFields:    normalized,
		ProposedCorrections: proposed,
		RequiresHumanReview: decision.RequiresHumanReview,
		Reasoning:           decision.Reasoning,
		ConfidenceScore:     decision.ConfidenceScore,
		MemoryUpdates:       updates,
		AppliedMemories:     applied,
		AuditTrail:          trail,
	}

	if err := e.store.AppendAuditEntries(ctx, inv.InvoiceID, trail); err != nil {
		log.Error("engine: audit append failed, durable trail incomplete", zap.Error(err))
		return out, eris.Wrapf(err, "engine: append audit trail for %s", inv.InvoiceID)
	}

	log.Info("engine: invoice processed",
		zap.Int("rules_applied", len(applied)),
		zap.Float64("confidence", decision.ConfidenceScore),
		zap.Bool("requires_review", decision.RequiresHumanReview),
	)
	return out, nil
}
