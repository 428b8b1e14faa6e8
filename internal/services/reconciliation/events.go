package reconciliation

import "encoding/json"

// Webhook resources
const (
	ResourceCollateral    = "collateral"
	ResourceAuthorization = "authorization"
	ResourceTransaction   = "transaction"
	ResourceCard          = "card"
	ResourceDispute       = "dispute"
	ResourceUser          = "user"
	ResourceContract      = "contract"
)

// Webhook actions
const (
	ActionCreated      = "created"
	ActionUpdated      = "updated"
	ActionCompleted    = "completed"
	ActionRequest      = "request"
	ActionNotification = "notification"
	ActionApproved     = "approved"
	ActionDenied       = "denied"
)

// Provider transaction statuses
const (
	ProviderStatusPending    = "pending"
	ProviderStatusSuccessful = "successful"
	ProviderStatusDeclined   = "declined"
	ProviderStatusReversed   = "reversed"
	ProviderStatusCompleted  = "completed"
)

// envelope is the outer webhook body; Data holds the event-specific
// payload decoded per (resource, action) pair.
type envelope struct {
	Resource string          `json:"resource"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data"`
}

// Event is the tagged union over per-(resource, action) payloads. The
// dispatcher switches exhaustively over its variants.
type Event interface {
	isEvent()
}

// FundingEvent is an on-chain collateral deposit settling against a
// pending deposit card transaction.
type FundingEvent struct {
	Reference string `json:"reference"`
	UserRef   string `json:"user_reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Hash      string `json:"transaction_hash"`
}

func (FundingEvent) isEvent() {}

// SpendAuthorizationEvent is a synchronous pre-commit approval check;
// it is advisory and persists nothing.
type SpendAuthorizationEvent struct {
	CardRef  string `json:"card_reference"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (SpendAuthorizationEvent) isEvent() {}

// Merchant carries the merchant metadata attached to spend events.
type Merchant struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Category string `json:"category"`
	MCC      string `json:"mcc"`
}

// Spend is the payload shared by the spend lifecycle events.
type Spend struct {
	Reference     string   `json:"reference"`
	UserRef       string   `json:"user_reference"`
	CardRef       string   `json:"card_reference"`
	Amount        int64    `json:"amount"`
	Currency      string   `json:"currency"`
	Status        string   `json:"status"`
	DeclineReason string   `json:"decline_reason"`
	Merchant      Merchant `json:"merchant"`
}

type SpendCreatedEvent struct{ Spend }

func (SpendCreatedEvent) isEvent() {}

type SpendUpdatedEvent struct{ Spend }

func (SpendUpdatedEvent) isEvent() {}

type SpendCompletedEvent struct{ Spend }

func (SpendCompletedEvent) isEvent() {}

// CardUpdatedEvent reflects a provider-side change to card settings.
type CardUpdatedEvent struct {
	CardRef        string `json:"card_reference"`
	Status         string `json:"status"`
	SpendLimit     int64  `json:"spend_limit"`
	LimitFrequency string `json:"limit_frequency"`
	Frozen         *bool  `json:"frozen"`
}

func (CardUpdatedEvent) isEvent() {}

// CardNotificationEvent is a provider message to be forwarded to the
// card holder.
type CardNotificationEvent struct {
	CardRef  string                 `json:"card_reference"`
	Kind     string                 `json:"kind"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (CardNotificationEvent) isEvent() {}

// DisputeCreatedEvent opens a dispute against a known provider
// transaction.
type DisputeCreatedEvent struct {
	DisputeRef string `json:"dispute_reference"`
	Reference  string `json:"transaction_reference"`
	Status     string `json:"status"`
	Evidence   string `json:"evidence"`
}

func (DisputeCreatedEvent) isEvent() {}

// DisputeUpdatedEvent moves an existing dispute through its lifecycle.
type DisputeUpdatedEvent struct {
	DisputeRef string `json:"dispute_reference"`
	Status     string `json:"status"`
	Evidence   string `json:"evidence"`
}

func (DisputeUpdatedEvent) isEvent() {}

// UserApprovedEvent reports a card-holder application approval.
type UserApprovedEvent struct {
	UserRef string `json:"user_reference"`
}

func (UserApprovedEvent) isEvent() {}

// UserDeniedEvent reports a card-holder application denial.
type UserDeniedEvent struct {
	UserRef string `json:"user_reference"`
	Reason  string `json:"reason"`
}

func (UserDeniedEvent) isEvent() {}

// ContractCreatedEvent records the provider contract reference for a
// card user.
type ContractCreatedEvent struct {
	UserRef     string `json:"user_reference"`
	ContractRef string `json:"contract_reference"`
}

func (ContractCreatedEvent) isEvent() {}
