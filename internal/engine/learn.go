package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/flowbit/invoice-engine/internal/model"
)

// learn reads the (at most one) human-correction record for the invoice and
// creates or reinforces/decays the correction memory for each corrected
// field. This is the only stage that writes to the memory store.
func (e *Engine) learn(ctx context.Context, inv *model.Invoice) ([]string, []model.AuditEntry, error) {
	hc, err := e.store.GetHumanCorrection(ctx, inv.InvoiceID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "engine: fetch human correction for %s", inv.InvoiceID)
	}
	if hc == nil {
		audit := []model.AuditEntry{model.NewAuditEntry(model.StepLearn, fmt.Sprintf(
			"No human corrections for invoice %s; no memory updates.", inv.InvoiceID,
		))}
		return nil, audit, nil
	}

	var updates []string
	for _, corr := range hc.Corrections {
		msg, err := e.reinforce(ctx, inv.Vendor, corr, hc.Approved())
		if err != nil {
			return nil, nil, err
		}
		updates = append(updates, msg)
	}

	audit := []model.AuditEntry{model.NewAuditEntry(model.StepLearn, fmt.Sprintf(
		"Processed %d human corrections for invoice %s.", len(hc.Corrections), inv.InvoiceID,
	))}
	return updates, audit, nil
}

// reinforce creates the (vendor, field) correction memory on first sighting,
// seeded by the review outcome, or moves the existing row's confidence by the
// reinforcement delta. The lookup-then-write is serialized per (vendor,
// field) key; the store clamps the adjustment to [0,1] atomically, and the
// unique index backstops creation races across processes.
func (e *Engine) reinforce(ctx context.Context, vendor string, corr model.FieldCorrection, approved bool) (string, error) {
	unlock := e.locks.lock(vendor + "\x00" + corr.Field)
	defer unlock()

	existing, err := e.store.GetCorrectionMemory(ctx, vendor, corr.Field)
	if err != nil {
		return "", eris.Wrapf(err, "engine: lookup correction memory %s/%s", vendor, corr.Field)
	}

	if existing == nil {
		confidence := e.cfg.RejectedSeed
		if approved {
			confidence = e.cfg.ApprovedSeed
		}
		_, err := e.store.CreateCorrectionMemory(ctx, model.CorrectionMemory{
			Vendor:         vendor,
			Field:          corr.Field,
			Pattern:        corr.Reason,
			SuggestedValue: corr.To,
			Confidence:     confidence,
		})
		if err != nil {
			return "", eris.Wrapf(err, "engine: create correction memory %s/%s", vendor, corr.Field)
		}
		return fmt.Sprintf(
			"Created correction memory for %s.%s with confidence %.2f.",
			vendor, corr.Field, confidence,
		), nil
	}

	delta := e.cfg.ReinforceDelta
	if !approved {
		delta = -delta
	}
	newConf, err := e.store.AdjustCorrectionMemoryConfidence(ctx, existing.ID, delta)
	if err != nil {
		return "", eris.Wrapf(err, "engine: adjust correction memory %s/%s", vendor, corr.Field)
	}
	return fmt.Sprintf(
		"Updated correction memory for %s.%s to confidence %.2f.",
		vendor, corr.Field, newConf,
	), nil
}

// keyedMutex hands out one mutex per string key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
