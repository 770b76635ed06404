// Package events names the billing ledger event types the orchestrator
// consumes and the payload shapes exchanged with the task substrate.
package events

// Event types delivered by the subscription ledger.
const (
	EventInvoicePaymentSuccess = "INVOICE_PAYMENT_SUCCESS"
	EventInvoicePaymentFailed  = "INVOICE_PAYMENT_FAILED"
	EventSubscriptionCancelled = "SUBSCRIPTION_CANCELLED"
)

// BillingEvent is the wire shape of an inbound ledger notification.
type BillingEvent struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	AccountID      string         `json:"account_id"`
	SubscriptionID string         `json:"subscription_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
