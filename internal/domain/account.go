package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const CurrentAccountVersion = 2

type DelegationKey struct {
	Token  TokenID
	Target AccountID
}

type Delegation struct {
	Token  TokenID   `json:"token_id"`
	Target AccountID `json:"target_id"`
	Amount Amount    `json:"amount,string"`
}

// Account is the normalized, in-memory layout of a participant record.
type Account struct {
	ID                   AccountID
	StakedByToken        map[TokenID]Amount
	Delegated            map[DelegationKey]Amount
	NextActionEligibleAt time.Time
}

func NewAccount(id AccountID) *Account {
	return &Account{
		ID:            id,
		StakedByToken: make(map[TokenID]Amount),
		Delegated:     make(map[DelegationKey]Amount),
	}
}

func (a *Account) Staked(token TokenID) Amount {
	return a.StakedByToken[token]
}

func (a *Account) DelegatedTo(token TokenID, target AccountID) Amount {
	return a.Delegated[DelegationKey{Token: token, Target: target}]
}

// DelegatedForToken sums what the account has delegated of token across all targets.
func (a *Account) DelegatedForToken(token TokenID) Amount {
	var total Amount
	for key, amount := range a.Delegated {
		if key.Token == token {
			total = SaturatingAdd(total, amount)
		}
	}
	return total
}

// Available is the staked amount of token not currently delegated.
func (a *Account) Available(token TokenID) Amount {
	staked := a.Staked(token)
	delegated := a.DelegatedForToken(token)
	if delegated >= staked {
		return 0
	}
	return staked - delegated
}

func (a *Account) TotalStaked() Amount {
	var total Amount
	for _, amount := range a.StakedByToken {
		total = SaturatingAdd(total, amount)
	}
	return total
}

func (a *Account) IsIdle(now time.Time) bool {
	return !now.Before(a.NextActionEligibleAt)
}

// Delegations returns the delegation table sorted by token then target.
func (a *Account) Delegations() []Delegation {
	out := make([]Delegation, 0, len(a.Delegated))
	for key, amount := range a.Delegated {
		out = append(out, Delegation{Token: key.Token, Target: key.Target, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Token != out[j].Token {
			return out[i].Token < out[j].Token
		}
		return out[i].Target < out[j].Target
	})
	return out
}

func (a *Account) Clone() *Account {
	c := &Account{
		ID:                   a.ID,
		StakedByToken:        make(map[TokenID]Amount, len(a.StakedByToken)),
		Delegated:            make(map[DelegationKey]Amount, len(a.Delegated)),
		NextActionEligibleAt: a.NextActionEligibleAt,
	}
	for k, v := range a.StakedByToken {
		c.StakedByToken[k] = v
	}
	for k, v := range a.Delegated {
		c.Delegated[k] = v
	}
	return c
}

// AccountV1 is the legacy stored layout. Delegations were a flat map keyed
// "token:target" and the cooldown was stored as unix nanoseconds.
type AccountV1 struct {
	Version             int               `json:"version,omitempty"`
	ID                  string            `json:"account_id"`
	VoteAmounts         map[string]uint64 `json:"vote_amounts"`
	DelegatedAmounts    map[string]uint64 `json:"delegated_amounts"`
	NextActionTimestamp int64             `json:"next_action_timestamp"`
}

type DelegationRecord struct {
	Token  string `json:"token_id"`
	Target string `json:"target_id"`
	Amount uint64 `json:"amount"`
}

// AccountV2 is the current stored layout.
type AccountV2 struct {
	Version              int                `json:"version"`
	ID                   string             `json:"account_id"`
	StakedByToken        map[string]uint64  `json:"staked_by_token"`
	Delegations          []DelegationRecord `json:"delegations"`
	NextActionEligibleAt time.Time          `json:"next_action_eligible_at"`
}

// VersionedAccount holds exactly one of the known layouts.
type VersionedAccount struct {
	V1 *AccountV1
	V2 *AccountV2
}

func (v VersionedAccount) Version() int {
	switch {
	case v.V2 != nil:
		return 2
	case v.V1 != nil:
		return 1
	default:
		return 0
	}
}

// Normalize converts whichever layout is present to the current Account.
func (v VersionedAccount) Normalize() (*Account, error) {
	switch {
	case v.V2 != nil:
		return v.V2.toAccount()
	case v.V1 != nil:
		return v.V1.toAccount()
	default:
		return nil, ErrUnsupportedSchemaVersion
	}
}

func (r *AccountV1) toAccount() (*Account, error) {
	acc := NewAccount(AccountID(r.ID))
	for token, amount := range r.VoteAmounts {
		if amount > 0 {
			acc.StakedByToken[TokenID(token)] = Amount(amount)
		}
	}
	for key, amount := range r.DelegatedAmounts {
		idx := strings.LastIndex(key, ":")
		if idx <= 0 || idx == len(key)-1 {
			return nil, fmt.Errorf("malformed v1 delegation key %q", key)
		}
		if amount > 0 {
			acc.Delegated[DelegationKey{Token: TokenID(key[:idx]), Target: AccountID(key[idx+1:])}] = Amount(amount)
		}
	}
	if r.NextActionTimestamp > 0 {
		acc.NextActionEligibleAt = time.Unix(0, r.NextActionTimestamp).UTC()
	}
	return acc, nil
}

func (r *AccountV2) toAccount() (*Account, error) {
	acc := NewAccount(AccountID(r.ID))
	for token, amount := range r.StakedByToken {
		if amount > 0 {
			acc.StakedByToken[TokenID(token)] = Amount(amount)
		}
	}
	for _, d := range r.Delegations {
		key := DelegationKey{Token: TokenID(d.Token), Target: AccountID(d.Target)}
		if _, dup := acc.Delegated[key]; dup {
			return nil, fmt.Errorf("duplicate delegation entry %s -> %s", d.Token, d.Target)
		}
		if d.Amount > 0 {
			acc.Delegated[key] = Amount(d.Amount)
		}
	}
	acc.NextActionEligibleAt = r.NextActionEligibleAt.UTC()
	return acc, nil
}

func toV2(a *Account) AccountV2 {
	rec := AccountV2{
		Version:              CurrentAccountVersion,
		ID:                   string(a.ID),
		StakedByToken:        make(map[string]uint64, len(a.StakedByToken)),
		Delegations:          make([]DelegationRecord, 0, len(a.Delegated)),
		NextActionEligibleAt: a.NextActionEligibleAt.UTC(),
	}
	for token, amount := range a.StakedByToken {
		rec.StakedByToken[string(token)] = uint64(amount)
	}
	for _, d := range a.Delegations() {
		rec.Delegations = append(rec.Delegations, DelegationRecord{
			Token:  string(d.Token),
			Target: string(d.Target),
			Amount: uint64(d.Amount),
		})
	}
	return rec
}

// EncodeAccount always writes the current layout.
func EncodeAccount(a *Account) ([]byte, error) {
	return json.Marshal(toV2(a))
}

// DecodeVersioned inspects the version tag and returns the matching layout.
// Records without a tag predate versioning and are read as V1.
func DecodeVersioned(data []byte) (VersionedAccount, error) {
	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return VersionedAccount{}, fmt.Errorf("failed to read account version: %w", err)
	}

	switch header.Version {
	case 0, 1:
		var rec AccountV1
		if err := json.Unmarshal(data, &rec); err != nil {
			return VersionedAccount{}, fmt.Errorf("failed to decode v1 account: %w", err)
		}
		return VersionedAccount{V1: &rec}, nil
	case 2:
		var rec AccountV2
		if err := json.Unmarshal(data, &rec); err != nil {
			return VersionedAccount{}, fmt.Errorf("failed to decode v2 account: %w", err)
		}
		return VersionedAccount{V2: &rec}, nil
	default:
		return VersionedAccount{}, fmt.Errorf("%w: %d", ErrUnsupportedSchemaVersion, header.Version)
	}
}

// DecodeAccount reads any known layout and normalizes it.
func DecodeAccount(data []byte) (*Account, error) {
	v, err := DecodeVersioned(data)
	if err != nil {
		return nil, err
	}
	return v.Normalize()
}
