package domain

type GovernanceCallKind string

const (
	GovernanceRegister   GovernanceCallKind = "register_delegation"
	GovernanceDelegate   GovernanceCallKind = "delegate"
	GovernanceUndelegate GovernanceCallKind = "undelegate"
)

// GovernanceCall is a fire-and-forget forward addressed to the governance service.
type GovernanceCall struct {
	Kind    GovernanceCallKind
	Account AccountID
	Amount  Amount
}
