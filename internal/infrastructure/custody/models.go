package custody

type TransferRequest struct {
	ReceiverID string  `json:"receiver_id"`
	TokenID    string  `json:"token_id"`
	ApprovalID *uint64 `json:"approval_id,omitempty"`
	Memo       string  `json:"memo,omitempty"`
	Msg        string  `json:"msg,omitempty"`
}

type TransferCallResponse struct {
	Transferred bool `json:"transferred"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
