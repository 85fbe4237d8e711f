package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Credentials identify one broker session.
type Credentials struct {
	APIKey      string
	AccessToken string
}

// OrderRequest is the order payload sent to the broker.
type OrderRequest struct {
	Symbol       string          `json:"tradingsymbol"`
	Exchange     string          `json:"exchange"`
	Side         string          `json:"transaction_type"`
	OrderType    string          `json:"order_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	TriggerPrice decimal.Decimal `json:"trigger_price,omitempty"`
	Tag          string          `json:"tag,omitempty"`
}

// Placement is the broker's response to a placed order.
type Placement struct {
	BrokerOrderID    string
	Status           string
	ExecutedPrice    decimal.Decimal
	ExecutedQuantity decimal.Decimal
}

// Error is a typed broker failure. Execution failures surface as *Error,
// never as a crash.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("broker error %s: %s", e.Code, e.Message)
}

// Broker places orders with an external execution venue.
type Broker interface {
	PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (*Placement, error)
}

// CredentialsProvider resolves broker credentials for a trading account.
type CredentialsProvider interface {
	Credentials(ctx context.Context, accountID string) (Credentials, error)
}

// StaticCredentials is a provider returning the same credentials for every
// account, used for single-tenant deployments and tests.
type StaticCredentials struct {
	Creds Credentials
}

func (s *StaticCredentials) Credentials(ctx context.Context, accountID string) (Credentials, error) {
	return s.Creds, nil
}
