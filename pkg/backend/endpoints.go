package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
)

const (
	pathCreateOrder        = "/orders/create"
	pathShippingCost       = "/orders/calculate-shipping-cost"
	pathShippingConfig     = "/orders/shipping-config"
	pathOrder              = "/orders/"
	pathPaymentConfig      = "/payment/config"
	pathPaymentMethods     = "/payment/methods"
	pathTokenizeCard       = "/payment/tokenize-card"
	pathTokenizeNequi      = "/payment/tokenize-nequi"
	pathNequiTokenPoll     = "/payment/wompi/nequi-token/%s/poll"
	pathNequiPaymentSource = "/payment/wompi/nequi-payment-source"
)

// CreateOrder submits the final order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	var out CreateOrderResponse
	if err := c.do(ctx, "orders.create", http.MethodPost, pathCreateOrder, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CalculateShippingCost asks the backend for the authoritative shipping quote.
func (c *Client) CalculateShippingCost(ctx context.Context, req ShippingCostRequest) (*ShippingCost, error) {
	var out ShippingCost
	if err := c.do(ctx, "orders.shipping_cost", http.MethodPost, pathShippingCost, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShippingConfig returns the static shipping catalog.
func (c *Client) ShippingConfig(ctx context.Context) (*ShippingConfig, error) {
	var out ShippingConfig
	if err := c.do(ctx, "orders.shipping_config", http.MethodGet, pathShippingConfig, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder reads an order for the confirmation view.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	var out Order
	if err := c.do(ctx, "orders.get", http.MethodGet, pathOrder+url.PathEscape(trimmed), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentConfig returns the tokenization public key and acceptance token.
func (c *Client) PaymentConfig(ctx context.Context) (*PaymentConfig, error) {
	var out PaymentConfig
	if err := c.do(ctx, "payment.config", http.MethodGet, pathPaymentConfig, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentMethods lists enabled methods and PSE banks.
func (c *Client) PaymentMethods(ctx context.Context) (*PaymentMethods, error) {
	var out PaymentMethods
	if err := c.do(ctx, "payment.methods", http.MethodGet, pathPaymentMethods, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TokenizeCard(ctx context.Context, req TokenizeCardRequest) (*CardToken, error) {
	var out CardToken
	if err := c.do(ctx, "payment.tokenize_card", http.MethodPost, pathTokenizeCard, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodePayment, "card tokenization returned no token")
	}
	return &out, nil
}

func (c *Client) TokenizeNequi(ctx context.Context, req TokenizeNequiRequest) (*NequiToken, error) {
	var out NequiToken
	if err := c.do(ctx, "payment.tokenize_nequi", http.MethodPost, pathTokenizeNequi, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodePayment, "nequi tokenization returned no token")
	}
	return &out, nil
}

// PollNequiToken reads the approval status of a wallet token.
func (c *Client) PollNequiToken(ctx context.Context, tokenID string) (*NequiToken, error) {
	trimmed := strings.TrimSpace(tokenID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nequi token id is required")
	}
	var out NequiToken
	path := strings.Replace(pathNequiTokenPoll, "%s", url.PathEscape(trimmed), 1)
	if err := c.do(ctx, "payment.nequi_poll", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateNequiPaymentSource(ctx context.Context, req NequiPaymentSourceRequest) (*PaymentSource, error) {
	var out PaymentSource
	if err := c.do(ctx, "payment.nequi_source", http.MethodPost, pathNequiPaymentSource, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodePayment, "nequi payment source was not created")
	}
	return &out, nil
}
