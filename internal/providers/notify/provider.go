// Package notify is the outbound notification collaborator. Delivery is
// fire-and-forget from the billing core's perspective; failures are logged by
// callers and never abort the triggering mutation.
package notify

import "context"

type TemplateKind string

const (
	TemplateInvoiceGenerated  TemplateKind = "invoice_generated"
	TemplateLateFeeApplied    TemplateKind = "late_fee_applied"
	TemplateSuspensionNotice  TemplateKind = "suspension_notice"
	TemplateCancellationFinal TemplateKind = "cancellation_final"
	TemplateReactivation      TemplateKind = "reactivation"
	TemplateProofReviewNeeded TemplateKind = "proof_review_needed"
)

type Notifier interface {
	Notify(ctx context.Context, target string, kind TemplateKind, payload map[string]any) error
}

type NoOpNotifier struct{}

func (NoOpNotifier) Notify(ctx context.Context, target string, kind TemplateKind, payload map[string]any) error {
	return nil
}
