// Package demo walks the correction pipeline through the embedded sample
// data and prints a narrated, styled transcript: first-pass processing,
// memory state, learned confidence after human feedback, and duplicate
// detection.
package demo

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/flowbit/invoice-engine/internal/engine"
	"github.com/flowbit/invoice-engine/internal/model"
	"github.com/flowbit/invoice-engine/internal/seed"
	"github.com/flowbit/invoice-engine/internal/store"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okMark       = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	warnMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("!")
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Runner drives the walkthrough against a live store.
type Runner struct {
	store   store.Store
	engine  *engine.Engine
	out     io.Writer
	printer *message.Printer
}

// NewRunner creates a Runner writing its transcript to out.
func NewRunner(st store.Store, eng *engine.Engine, out io.Writer) *Runner {
	return &Runner{
		store:   st,
		engine:  eng,
		out:     out,
		printer: message.NewPrinter(language.English),
	}
}

// Run seeds the sample data and plays through every phase.
func (r *Runner) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, titleStyle.Render("Invoice correction pipeline walkthrough"))
	fmt.Fprintln(r.out)

	res, err := seed.NewSeeder(r.store).Seed(ctx)
	if err != nil {
		return eris.Wrap(err, "demo: seed sample data")
	}
	r.printer.Fprintf(r.out, "%s Seeded %d invoices, %d purchase orders, %d vendor memories.\n\n",
		okMark, res.Invoices, res.PurchaseOrders, res.VendorMemories)

	if err := r.firstPass(ctx); err != nil {
		return err
	}
	if err := r.memoryState(ctx); err != nil {
		return err
	}
	if err := r.secondPass(ctx); err != nil {
		return err
	}
	return r.duplicates(ctx)
}

// firstPass processes one invoice per rule family and prints what each rule
// proposed. Human corrections are already seeded, so the learn stage creates
// correction memories as a side effect.
func (r *Runner) firstPass(ctx context.Context) error {
	fmt.Fprintln(r.out, sectionStyle.Render("Phase 1: first pass"))
	for _, id := range []string{"INV-1001", "INV-1002", "INV-2001", "INV-2002", "INV-3001"} {
		out, err := r.engine.ProcessInvoice(ctx, id)
		if err != nil {
			return eris.Wrapf(err, "demo: process %s", id)
		}
		r.printOutput(id, out)
	}
	fmt.Fprintln(r.out)
	return nil
}

// memoryState dumps the correction memories the learn stage created.
func (r *Runner) memoryState(ctx context.Context) error {
	fmt.Fprintln(r.out, sectionStyle.Render("Phase 2: learned memories"))
	for _, vendor := range []string{"Supplier GmbH", "Parts AG", "Freight & Co"} {
		memories, err := r.store.GetCorrectionMemories(ctx, vendor)
		if err != nil {
			return eris.Wrapf(err, "demo: memories for %s", vendor)
		}
		if len(memories) == 0 {
			fmt.Fprintf(r.out, "  %s %s\n", vendor, dimStyle.Render("(none)"))
			continue
		}
		for _, m := range memories {
			r.printer.Fprintf(r.out, "  %s %s.%s confidence %.2f\n", okMark, vendor, m.Field, m.Confidence)
		}
	}
	fmt.Fprintln(r.out)
	return nil
}

// secondPass re-processes an invoice so the recall stage sees the memories
// created in phase 1 and the confidence boost shows up in the decision.
func (r *Runner) secondPass(ctx context.Context) error {
	fmt.Fprintln(r.out, sectionStyle.Render("Phase 3: second pass with learned memories"))
	out, err := r.engine.ProcessInvoice(ctx, "INV-1001")
	if err != nil {
		return eris.Wrap(err, "demo: reprocess INV-1001")
	}
	r.printOutput("INV-1001", out)
	fmt.Fprintln(r.out)
	return nil
}

// duplicates processes the pair of Freight & Co invoices sharing an invoice
// number one day apart.
func (r *Runner) duplicates(ctx context.Context) error {
	fmt.Fprintln(r.out, sectionStyle.Render("Phase 4: duplicate detection"))
	for _, id := range []string{"INV-4001", "INV-4002"} {
		out, err := r.engine.ProcessInvoice(ctx, id)
		if err != nil {
			return eris.Wrapf(err, "demo: process %s", id)
		}
		r.printOutput(id, out)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *Runner) printOutput(id string, out *model.EngineOutput) {
	mark := okMark
	if out.RequiresHumanReview {
		mark = warnMark
	}
	r.printer.Fprintf(r.out, "  %s %s confidence %.2f, review=%t\n", mark, id, out.ConfidenceScore, out.RequiresHumanReview)
	for _, c := range out.ProposedCorrections {
		fmt.Fprintf(r.out, "      %s\n", dimStyle.Render(c))
	}
}
