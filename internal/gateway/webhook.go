package gateway

import "encoding/json"

const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailed    = "charge.failed"
	EventTransferSuccess = "transfer.success"
	EventTransferFailed  = "transfer.failed"
)

// WebhookEvent is the envelope of every webhook delivery.
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TransferData is the subset of a transfer event that is logged.
type TransferData struct {
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	TransferCode  string `json:"transfer_code"`
	FailureReason string `json:"reason"`
}

// Settled reports whether the gateway has reached a final verdict on the charge.
// pending, ongoing, processing and queued are still in flight. abandoned means the
// customer left checkout; the same reference can still be paid, so it is not final.
func (d *TransactionDetails) Settled() bool {
	switch d.Status {
	case "pending", "ongoing", "processing", "queued", "abandoned", "":
		return false
	}
	return true
}
