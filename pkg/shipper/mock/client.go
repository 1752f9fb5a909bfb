// Package mock provides a mock shipper implementation for testing.
package mock

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/tournevent/upsbridge/pkg/shipper"
)

// LabelBytes is the decoded label every mock order returns (a 1x1 GIF).
var LabelBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

// Client is a mock shipper for testing.
type Client struct {
	name string

	// Err, when set, is returned by every operation.
	Err error

	mu     sync.Mutex
	orders []*shipper.CreateOrderRequest
}

// New creates a new mock shipper.
func New(name string) *Client {
	return &Client{name: name}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// Orders returns the CreateOrder requests received so far.
func (c *Client) Orders() []*shipper.CreateOrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*shipper.CreateOrderRequest(nil), c.orders...)
}

// GetQuote returns mock shipping quotes.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	now := time.Now()
	expiresAt := now.Add(30 * time.Minute)
	ground := now.Add(5 * 24 * time.Hour)
	express := now.Add(2 * 24 * time.Hour)

	return &shipper.QuoteResponse{
		QuoteID:   fmt.Sprintf("%s-quote-%d", c.name, now.UnixNano()),
		ExpiresAt: expiresAt,
		Rates: []shipper.RateOption{
			{
				RateID:            "03",
				Carrier:           c.name,
				ServiceCode:       "03",
				ServiceName:       "Ground",
				ServiceType:       shipper.ServiceStandard,
				BaseRate:          shipper.Money{Amount: 12.50, Currency: "USD"},
				FuelSurcharge:     shipper.Money{Amount: 1.50, Currency: "USD"},
				TotalPrice:        shipper.Money{Amount: 14.00, Currency: "USD"},
				TransitDays:       5,
				EstimatedDelivery: &ground,
				ExpiresAt:         expiresAt,
			},
			{
				RateID:            "02",
				Carrier:           c.name,
				ServiceCode:       "02",
				ServiceName:       "2nd Day Air",
				ServiceType:       shipper.ServiceExpress,
				BaseRate:          shipper.Money{Amount: 24.00, Currency: "USD"},
				FuelSurcharge:     shipper.Money{Amount: 2.50, Currency: "USD"},
				TotalPrice:        shipper.Money{Amount: 26.50, Currency: "USD"},
				TransitDays:       2,
				EstimatedDelivery: &express,
				ExpiresAt:         expiresAt,
				Guaranteed:        true,
			},
		},
	}, nil
}

// CreateOrder creates a mock shipping order with an inline GIF label.
func (c *Client) CreateOrder(ctx context.Context, req *shipper.CreateOrderRequest) (*shipper.CreateOrderResponse, error) {
	c.mu.Lock()
	c.orders = append(c.orders, req)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}

	now := time.Now()
	orderID := fmt.Sprintf("%s-order-%d", c.name, now.UnixNano())
	trackingNumber := fmt.Sprintf("1Z%s%d", c.name[:min(3, len(c.name))], now.UnixNano()%1000000000)

	return &shipper.CreateOrderResponse{
		OrderID:        orderID,
		TrackingNumber: trackingNumber,
		Status:         shipper.StatusConfirmed,
		Carrier:        c.name,
		ServiceName:    "Ground",
		TotalCharged:   shipper.Money{Amount: 14.00, Currency: "USD"},
		Labels: []shipper.Label{{
			Format: shipper.LabelGIF,
			Data:   base64.StdEncoding.EncodeToString(LabelBytes),
		}},
	}, nil
}

// GetLabel returns a mock shipping label.
func (c *Client) GetLabel(ctx context.Context, req *shipper.GetLabelRequest) (*shipper.GetLabelResponse, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	format := req.Format
	if format == "" {
		format = shipper.LabelGIF
	}

	return &shipper.GetLabelResponse{
		OrderID: req.OrderID,
		Label: shipper.Label{
			Format: format,
			Data:   base64.StdEncoding.EncodeToString(LabelBytes),
		},
	}, nil
}

// CancelOrder cancels a mock shipping order.
func (c *Client) CancelOrder(ctx context.Context, req *shipper.CancelOrderRequest) (*shipper.CancelOrderResponse, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	return &shipper.CancelOrderResponse{
		OrderID:            req.OrderID,
		Status:             shipper.StatusCancelled,
		ConfirmationNumber: fmt.Sprintf("VOID-%d", time.Now().UnixNano()),
	}, nil
}

var _ shipper.Shipper = (*Client)(nil)
