package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/example/checkout-engine/internal/auth"
	"github.com/example/checkout-engine/internal/money"
)

// Client is the HTTP client for the remote order/cart service. A bearer token
// present on the request context is forwarded as-is.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry
}

func NewClient(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logger.WithField("component", "backend"),
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := auth.TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			if payload.Error != "" {
				apiErr.Message = payload.Error
			} else {
				apiErr.Message = payload.Message
			}
		}
		c.log.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("backend returned non-2xx")
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode %s %s response", method, path)
		}
	}
	return nil
}

// Cart sync

func (c *Client) AddCartItem(ctx context.Context, item CartItem) error {
	return c.doJSON(ctx, http.MethodPost, "/cart/items", item, nil)
}

func (c *Client) UpdateCartItem(ctx context.Context, productID string, quantity int) error {
	body := map[string]int{"quantity": quantity}
	return c.doJSON(ctx, http.MethodPut, "/cart/items/"+url.PathEscape(productID), body, nil)
}

func (c *Client) RemoveCartItem(ctx context.Context, productID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(productID), nil, nil)
}

// Promo codes

func (c *Client) ValidatePromo(ctx context.Context, code string, subtotal money.Money) (money.Money, error) {
	var resp promoValidateResponse
	req := promoValidateRequest{Code: code, Subtotal: subtotal}
	if err := c.doJSON(ctx, http.MethodPost, "/promo-codes/validate", req, &resp); err != nil {
		return money.Zero(), err
	}
	return resp.DiscountAmount, nil
}

// Addresses

func (c *Client) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	var addresses []Address
	path := "/addresses/user/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (c *Client) CreateAddress(ctx context.Context, addr Address) (Address, error) {
	var created Address
	if err := c.doJSON(ctx, http.MethodPost, "/addresses", addr, &created); err != nil {
		return Address{}, err
	}
	return created, nil
}

func (c *Client) UpdateAddress(ctx context.Context, id string, addr Address) (Address, error) {
	var updated Address
	if err := c.doJSON(ctx, http.MethodPut, "/addresses/"+url.PathEscape(id), addr, &updated); err != nil {
		return Address{}, err
	}
	return updated, nil
}

func (c *Client) DeleteAddress(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/addresses/"+url.PathEscape(id), nil, nil)
}

// Orders and payment intents

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error) {
	var resp CreateOrderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/checkout/create-order", req, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("backend returned empty order id")
	}
	return resp.OrderID, nil
}

func (c *Client) CreateGuestOrder(ctx context.Context, req CreateGuestOrderRequest) (CreateGuestOrderResponse, error) {
	var resp CreateGuestOrderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/checkout/create-order-guest", req, &resp); err != nil {
		return CreateGuestOrderResponse{}, err
	}
	if resp.OrderID == "" {
		return CreateGuestOrderResponse{}, fmt.Errorf("backend returned empty order id")
	}
	return resp, nil
}

func (c *Client) InitiatePayment(ctx context.Context, orderID string, req InitiatePaymentRequest) (string, error) {
	var resp paymentIntentResponse
	path := "/checkout/" + url.PathEscape(orderID) + "/initiate-payment"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	return resp.ClientSecret, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (string, error) {
	var resp paymentIntentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/payment/create-intent", req, &resp); err != nil {
		return "", err
	}
	return resp.ClientSecret, nil
}
