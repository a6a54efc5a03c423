package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"github.com/jmerrifield20/ethosguard/internal/auditledger/tamper"
	"github.com/jmerrifield20/ethosguard/internal/decision"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the record, tamper and verify walkthrough on a local in-memory ledger",
	Long: `demo records a few credit decisions in a throwaway in-memory ledger, then
shows how verification catches two kinds of tampering:

  1. editing a recorded outcome in place (hash_mismatch at the edited entry)
  2. editing it and recomputing its hash (broken_link at the next entry)

Tampering is applied to copies; the ledger itself is never modified.`,
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ledger := auditledger.New()
	rec := decision.NewRecorder(ledger, zap.NewNop())

	samples := []decision.Decision{
		{ModelID: "credit_risk_v1", Subject: "applicant-1001", Features: []float64{0.8, 0.2}, Output: 0.95, Outcome: "approved"},
		{ModelID: "credit_risk_v1", Subject: "applicant-1002", Features: []float64{0.1, 0.9}, Output: 0.12, Outcome: "denied"},
		{ModelID: "credit_risk_v1", Subject: "applicant-1003", Features: []float64{0.5, 0.5}, Output: 0.61, Outcome: "approved"},
	}
	for _, d := range samples {
		if _, _, err := rec.Record(ctx, d); err != nil {
			return err
		}
	}

	entries, err := ledger.Entries(ctx, 0, 0)
	if err != nil {
		return err
	}
	fmt.Println("Recorded chain:")
	if err := printChain(entries); err != nil {
		return err
	}

	res, err := ledger.Verify(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nIntact ledger: %s\n", describe(res))

	edited, err := tamper.EditPayload(entries, 2, "outcome", "approved")
	if err != nil {
		return err
	}
	fmt.Printf("Entry 2 outcome changed to approved: %s\n", describe(auditledger.VerifyChain(edited)))

	rehashed, err := tamper.EditAndRehash(entries, 2, "outcome", "approved")
	if err != nil {
		return err
	}
	fmt.Printf("Same edit with entry 2 rehashed:     %s\n", describe(auditledger.VerifyChain(rehashed)))

	res, err = ledger.Verify(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Original ledger afterwards:          %s\n", describe(res))
	return nil
}

func describe(res auditledger.Result) string {
	if res.Valid {
		return fmt.Sprintf("valid (%d entries)", res.Entries)
	}
	return fmt.Sprintf("INVALID, %s at position %d", res.Reason, res.Position)
}

func printChain(entries []auditledger.Entry) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tPREVIOUS\tHASH\tOUTCOME")
	for _, e := range entries {
		outcome := "-"
		if d, err := decision.FromEntry(e); err == nil {
			outcome = d.Outcome
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Position(), formatHash(e.PrevHash()), formatHash(e.Hash()), outcome)
	}
	return w.Flush()
}
