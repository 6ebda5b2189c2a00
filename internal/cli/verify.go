package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jvs-project/taskstate/internal/store"
	"github.com/jvs-project/taskstate/pkg/color"
	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/webhook"
)

type verifyReport struct {
	Records      int             `json:"records"`
	Problems     []store.Problem `json:"problems"`
	AuditRecords int             `json:"audit_records"`
	AuditError   string          `json:"audit_error,omitempty"`
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify stored records and the audit log",
		Long: `Load every stored record and check its checksum, then walk the audit
log and check its hash chain. Exits non-zero if anything fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject()
			if err != nil {
				return err
			}
			defer p.Close()

			ids, err := p.store.List()
			if err != nil {
				return err
			}
			problems, err := p.store.Verify()
			if err != nil {
				return err
			}
			report := verifyReport{Records: len(ids), Problems: problems}
			auditCount, auditErr := p.audit.Verify()
			report.AuditRecords = auditCount
			if auditErr != nil {
				report.AuditError = auditErr.Error()
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := outputJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, pr := range problems {
					fmt.Fprintf(out, "%s  %s: %s\n", color.Error("CORRUPT"), pr.Location, pr.Message)
				}
				fmt.Fprintf(out, "Records: %d readable, %d corrupt\n", len(ids), len(problems))
				if auditErr != nil {
					fmt.Fprintf(out, "Audit:   %s after %d records: %v\n", color.Error("BROKEN"), auditCount, auditErr)
				} else {
					fmt.Fprintf(out, "Audit:   %s (%d records)\n", color.Success("OK"), auditCount)
				}
			}

			var failure error
			if len(problems) > 0 {
				failure = errclass.ErrRecordCorrupt.WithMessagef("%d corrupt records", len(problems))
			} else {
				failure = auditErr
			}
			if failure != nil {
				p.hooks.Send(webhook.Event{
					Event:    webhook.EventVerifyFailed,
					Error:    failure.Error(),
					Metadata: map[string]any{"corrupt_records": len(problems), "audit_records": auditCount},
				}, true)
			}
			return failure
		},
	}
}
