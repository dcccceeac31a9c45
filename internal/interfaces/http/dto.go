package http

import (
	"sort"
	"time"

	"github.com/roshkins/sputnik-dao-contract/internal/domain"
)

// Amounts cross the API as decimal strings so the full uint64 range survives
// JSON clients that parse numbers as doubles.

type OnTransferRequest struct {
	SenderID        string `json:"sender_id" binding:"required"`
	PreviousOwnerID string `json:"previous_owner_id"`
	TokenID         string `json:"token_id" binding:"required"`
	Msg             string `json:"msg"`
}

type RegisterRequest struct {
	TokenID string `json:"token_id" binding:"required"`
	Weight  string `json:"weight" binding:"required"`
}

type DelegationRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	TokenID  string `json:"token_id" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

type WithdrawRequest struct {
	TokenID string `json:"token_id" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Memo    string `json:"memo"`
	Payload string `json:"payload"`
}

type WithdrawResponse struct {
	WithdrawalID string `json:"withdrawal_id"`
	Status       string `json:"status"`
}

type AmountResponse struct {
	Amount string `json:"amount"`
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

type TokenWeight struct {
	TokenID string `json:"token_id"`
	Weight  string `json:"weight"`
}

type RegistryResponse struct {
	Data []TokenWeight `json:"data"`
}

type AccountResponse struct {
	AccountID            string              `json:"account_id"`
	StakedByToken        map[string]string   `json:"staked_by_token"`
	Delegations          []domain.Delegation `json:"delegations"`
	TotalStaked          string              `json:"total_staked"`
	NextActionEligibleAt *time.Time          `json:"next_action_eligible_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func newAccountResponse(acc *domain.Account) AccountResponse {
	resp := AccountResponse{
		AccountID:     string(acc.ID),
		StakedByToken: make(map[string]string, len(acc.StakedByToken)),
		Delegations:   acc.Delegations(),
		TotalStaked:   acc.TotalStaked().String(),
	}
	for token, amount := range acc.StakedByToken {
		resp.StakedByToken[string(token)] = amount.String()
	}
	if !acc.NextActionEligibleAt.IsZero() {
		at := acc.NextActionEligibleAt.UTC()
		resp.NextActionEligibleAt = &at
	}
	return resp
}

func newRegistryResponse(weights map[domain.TokenID]domain.Amount) RegistryResponse {
	resp := RegistryResponse{Data: make([]TokenWeight, 0, len(weights))}
	for token, weight := range weights {
		resp.Data = append(resp.Data, TokenWeight{TokenID: string(token), Weight: weight.String()})
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].TokenID < resp.Data[j].TokenID })
	return resp
}
