package ups

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// mockLabel is a 1x1 GIF.
var mockLabel = base64.StdEncoding.EncodeToString([]byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;"))

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateShipment func(ctx context.Context, req *ShipmentRequestEnvelope) (*ShipmentResponseEnvelope, error)
	OnRate           func(ctx context.Context, req *RateRequestEnvelope) (*RateResponseEnvelope, error)
	OnVoidShipment   func(ctx context.Context, shipmentID string) (*VoidResponseEnvelope, error)
	OnRecoverLabel   func(ctx context.Context, req *LabelRecoveryRequestEnvelope) (*LabelRecoveryResponseEnvelope, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return &APIError{StatusCode: 500, Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	return nil
}

func successResponse() Response {
	return Response{ResponseStatus: CodeDescription{Code: "1", Description: "Success"}}
}

// CreateShipment returns one tracking number and GIF label per package.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequestEnvelope) (*ShipmentResponseEnvelope, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	shipmentID := fmt.Sprintf("1Z%06d%010d", time.Now().Nanosecond()%1000000, time.Now().UnixNano()%10000000000)
	results := make(List[PackageResult], 0, len(req.ShipmentRequest.Shipment.Package))
	for i := range req.ShipmentRequest.Shipment.Package {
		results = append(results, PackageResult{
			TrackingNumber: fmt.Sprintf("%s%02d", shipmentID[:16], i+1),
			ShippingLabel: &ShippingLabel{
				ImageFormat:  CodeDescription{Code: "GIF", Description: "GIF"},
				GraphicImage: mockLabel,
			},
		})
	}

	return &ShipmentResponseEnvelope{
		ShipmentResponse: ShipmentResponse{
			Response: successResponse(),
			ShipmentResults: ShipmentResults{
				ShipmentCharges: &ShipmentCharges{
					TransportationCharges: Charge{CurrencyCode: "USD", MonetaryValue: "14.00"},
					ServiceOptionsCharges: Charge{CurrencyCode: "USD", MonetaryValue: "0.00"},
					TotalCharges:          Charge{CurrencyCode: "USD", MonetaryValue: "14.00"},
				},
				ShipmentIdentificationNumber: shipmentID,
				PackageResults:               results,
			},
		},
	}, nil
}

// Rate returns Ground and 2nd Day Air prices.
func (m *MockAPIClient) Rate(ctx context.Context, req *RateRequestEnvelope) (*RateResponseEnvelope, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnRate != nil {
		return m.OnRate(ctx, req)
	}

	return &RateResponseEnvelope{
		RateResponse: RateResponse{
			Response: successResponse(),
			RatedShipment: List[RatedShipment]{
				{
					Service:               CodeDescription{Code: "03"},
					TransportationCharges: Charge{CurrencyCode: "USD", MonetaryValue: "14.00"},
					TotalCharges:          Charge{CurrencyCode: "USD", MonetaryValue: "14.00"},
				},
				{
					Service:               CodeDescription{Code: "02"},
					TransportationCharges: Charge{CurrencyCode: "USD", MonetaryValue: "26.50"},
					TotalCharges:          Charge{CurrencyCode: "USD", MonetaryValue: "26.50"},
					GuaranteedDelivery:    &GuaranteedDelivery{BusinessDaysInTransit: "2"},
				},
			},
		},
	}, nil
}

// VoidShipment voids any shipment.
func (m *MockAPIClient) VoidShipment(ctx context.Context, shipmentID string) (*VoidResponseEnvelope, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnVoidShipment != nil {
		return m.OnVoidShipment(ctx, shipmentID)
	}

	return &VoidResponseEnvelope{
		VoidShipmentResponse: VoidShipmentResponse{
			Response:      successResponse(),
			SummaryResult: SummaryResult{Status: CodeDescription{Code: "1", Description: "Voided"}},
		},
	}, nil
}

// RecoverLabel returns a GIF label for any tracking number.
func (m *MockAPIClient) RecoverLabel(ctx context.Context, req *LabelRecoveryRequestEnvelope) (*LabelRecoveryResponseEnvelope, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnRecoverLabel != nil {
		return m.OnRecoverLabel(ctx, req)
	}

	return &LabelRecoveryResponseEnvelope{
		LabelRecoveryResponse: LabelRecoveryResponse{
			Response: successResponse(),
			LabelResults: List[LabelResult]{{
				TrackingNumber: req.LabelRecoveryRequest.TrackingNumber,
				LabelImage: LabelImage{
					LabelImageFormat: req.LabelRecoveryRequest.LabelSpecification.LabelImageFormat,
					GraphicImage:     mockLabel,
				},
			}},
		},
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
