package dto

// StrategyQuery defines the query parameters of the strategy preview.
type StrategyQuery struct {
	Wallet string `form:"wallet" binding:"required"`
	Amount string `form:"amount" binding:"required"`
	Count  int    `form:"count"`
}

// WebhookAck is returned to the settlement provider for every delivery it should not retry.
type WebhookAck struct {
	Received bool           `json:"received"`
	BatchID  string         `json:"batchID,omitempty"`
	Batch    *BatchResponse `json:"batch,omitempty"`
	Error    string         `json:"error,omitempty"`
}
