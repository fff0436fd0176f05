package audit

// EventType classifies a security-relevant event. The set is closed: Append
// rejects anything outside it so downstream consumers can rely on the
// enumeration.
type EventType string

const (
	TransactionSubmitted EventType = "TRANSACTION_SUBMITTED"
	TransactionValidated EventType = "TRANSACTION_VALIDATED"
	TransactionRejected  EventType = "TRANSACTION_REJECTED"

	BlockCreated   EventType = "BLOCK_CREATED"
	BlockValidated EventType = "BLOCK_VALIDATED"
	BlockAppended  EventType = "BLOCK_APPENDED"

	DeviceProvisioned    EventType = "DEVICE_PROVISIONED"
	DeviceActivated      EventType = "DEVICE_ACTIVATED"
	DeviceDecommissioned EventType = "DEVICE_DECOMMISSIONED"

	IdentityRegistered EventType = "IDENTITY_REGISTERED"
	CredentialIssued   EventType = "CREDENTIAL_ISSUED"
	CredentialVerified EventType = "CREDENTIAL_VERIFIED"
	CredentialRevoked  EventType = "CREDENTIAL_REVOKED"

	PrivateDataStored   EventType = "PRIVATE_DATA_STORED"
	PrivateDataAccessed EventType = "PRIVATE_DATA_ACCESSED"

	ConsensusRoundStarted EventType = "CONSENSUS_ROUND_STARTED"
	ConsensusDecision     EventType = "CONSENSUS_DECISION"

	AccessDenied  EventType = "ACCESS_DENIED"
	SecurityAlert EventType = "SECURITY_ALERT"

	NodeStarted EventType = "NODE_STARTED"
	NodeStopped EventType = "NODE_STOPPED"
)

var eventTypes = map[EventType]struct{}{
	TransactionSubmitted:  {},
	TransactionValidated:  {},
	TransactionRejected:   {},
	BlockCreated:          {},
	BlockValidated:        {},
	BlockAppended:         {},
	DeviceProvisioned:     {},
	DeviceActivated:       {},
	DeviceDecommissioned:  {},
	IdentityRegistered:    {},
	CredentialIssued:      {},
	CredentialVerified:    {},
	CredentialRevoked:     {},
	PrivateDataStored:     {},
	PrivateDataAccessed:   {},
	ConsensusRoundStarted: {},
	ConsensusDecision:     {},
	AccessDenied:          {},
	SecurityAlert:         {},
	NodeStarted:           {},
	NodeStopped:           {},
}

func (t EventType) Valid() bool {
	_, ok := eventTypes[t]
	return ok
}
