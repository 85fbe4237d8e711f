package broker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// RESTBroker talks to a Kite-style order placement API over HTTP.
type RESTBroker struct {
	client *resty.Client
}

// NewRESTBroker creates a broker client against the given base URL.
func NewRESTBroker(baseURL string) *RESTBroker {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &RESTBroker{client: client}
}

type placeOrderResponse struct {
	Status string `json:"status"`
	Data   struct {
		OrderID        string `json:"order_id"`
		OrderStatus    string `json:"status"`
		AveragePrice   string `json:"average_price"`
		FilledQuantity string `json:"filled_quantity"`
	} `json:"data"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// PlaceOrder submits an order and maps failures into *Error.
func (b *RESTBroker) PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (*Placement, error) {
	var result placeOrderResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", fmt.Sprintf("token %s:%s", creds.APIKey, creds.AccessToken)).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post("/orders/regular")

	if err != nil {
		return nil, &Error{Code: "NETWORK", Message: err.Error(), Retryable: true}
	}

	if resp.StatusCode() >= http.StatusBadRequest || result.Status == "error" {
		code := result.ErrorType
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", resp.StatusCode())
		}
		return nil, &Error{
			Code:      code,
			Message:   result.Message,
			Retryable: resp.StatusCode() >= http.StatusInternalServerError,
		}
	}

	placement := &Placement{
		BrokerOrderID: result.Data.OrderID,
		Status:        result.Data.OrderStatus,
	}
	if result.Data.AveragePrice != "" {
		if price, err := decimal.NewFromString(result.Data.AveragePrice); err == nil {
			placement.ExecutedPrice = price
		}
	}
	if result.Data.FilledQuantity != "" {
		if qty, err := decimal.NewFromString(result.Data.FilledQuantity); err == nil {
			placement.ExecutedQuantity = qty
		}
	}

	return placement, nil
}
