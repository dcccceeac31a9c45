package governance

// DelegationRequest carries the weighted amount as a decimal string so that
// values above 2^53 survive JSON consumers.
type DelegationRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
