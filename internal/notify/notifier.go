package notify

import (
	"context"
)

// Push templates
const (
	TemplateStageStart      = "stage_start"
	TemplateStageAcceptance = "stage_acceptance"
	TemplateReportReady     = "report_ready"
	TemplateAnalysisFailed  = "analysis_failed"
	TemplatePaymentDone     = "payment_done"
)

// Notifier is the port for push delivery. Implementations are best-effort:
// callers log failures but never fail a business transaction on them.
type Notifier interface {
	Push(ctx context.Context, userToken, template string, payload map[string]string) error
}

// NoopNotifier is used when push delivery is not configured
type NoopNotifier struct{}

// Push does nothing
func (NoopNotifier) Push(ctx context.Context, userToken, template string, payload map[string]string) error {
	return nil
}
