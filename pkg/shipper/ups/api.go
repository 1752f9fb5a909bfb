package ups

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// APIClient defines the UPS REST operations used by Client.
// Implementations: HTTPAPIClient (production) and MockAPIClient (tests).
type APIClient interface {
	// CreateShipment books a shipment and returns tracking numbers and labels.
	CreateShipment(ctx context.Context, req *ShipmentRequestEnvelope) (*ShipmentResponseEnvelope, error)

	// Rate shops all services for a shipment.
	Rate(ctx context.Context, req *RateRequestEnvelope) (*RateResponseEnvelope, error)

	// VoidShipment cancels a shipment by its identification number.
	VoidShipment(ctx context.Context, shipmentID string) (*VoidResponseEnvelope, error)

	// RecoverLabel fetches the label of an existing package.
	RecoverLabel(ctx context.Context, req *LabelRecoveryRequestEnvelope) (*LabelRecoveryResponseEnvelope, error)
}

// ============================================================================
// Shared types
// ============================================================================

// List decodes a UPS field that is an object for one element and an array
// for several.
type List[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (l *List[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case data[0] == '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		*l = List[T]{item}
		return nil
	}
}

// CodeDescription is the UPS {Code, Description} pair used for services,
// packaging, units and statuses.
type CodeDescription struct {
	Code        string `json:"Code"`
	Description string `json:"Description,omitempty"`
}

// Request is the common request header.
type Request struct {
	SubVersion           string                `json:"SubVersion,omitempty"`
	RequestOption        string                `json:"RequestOption,omitempty"`
	TransactionReference *TransactionReference `json:"TransactionReference,omitempty"`
}

// TransactionReference echoes caller context back in the response.
type TransactionReference struct {
	CustomerContext string `json:"CustomerContext,omitempty"`
}

// Response is the common response header.
type Response struct {
	ResponseStatus       CodeDescription       `json:"ResponseStatus"`
	Alert                List[CodeDescription] `json:"Alert,omitempty"`
	TransactionReference *TransactionReference `json:"TransactionReference,omitempty"`
}

// Succeeded reports whether UPS flagged the transaction as successful.
// An absent status is treated as success; the HTTP status already decided.
func (r Response) Succeeded() bool {
	return r.ResponseStatus.Code == "" || r.ResponseStatus.Code == "1"
}

// Party is a shipper, ship-to or ship-from party.
type Party struct {
	Name          string  `json:"Name"`
	AttentionName string  `json:"AttentionName,omitempty"`
	Phone         *Phone  `json:"Phone,omitempty"`
	ShipperNumber string  `json:"ShipperNumber,omitempty"`
	EMailAddress  string  `json:"EMailAddress,omitempty"`
	Address       Address `json:"Address"`
}

// Phone is a UPS phone number.
type Phone struct {
	Number    string `json:"Number"`
	Extension string `json:"Extension,omitempty"`
}

// Address is a UPS street address.
type Address struct {
	AddressLine                 []string `json:"AddressLine"`
	City                        string   `json:"City"`
	StateProvinceCode           string   `json:"StateProvinceCode,omitempty"`
	PostalCode                  string   `json:"PostalCode"`
	CountryCode                 string   `json:"CountryCode"`
	ResidentialAddressIndicator *string  `json:"ResidentialAddressIndicator,omitempty"`
}

// Package is a single package in a shipment or rate request.
type Package struct {
	Description   string          `json:"Description,omitempty"`
	Packaging     CodeDescription `json:"Packaging"`
	Dimensions    *Dimensions     `json:"Dimensions,omitempty"`
	PackageWeight PackageWeight   `json:"PackageWeight"`
}

// Dimensions are package dimensions; UPS expects numbers as strings.
type Dimensions struct {
	UnitOfMeasurement CodeDescription `json:"UnitOfMeasurement"`
	Length            string          `json:"Length"`
	Width             string          `json:"Width"`
	Height            string          `json:"Height"`
}

// PackageWeight is a package weight.
type PackageWeight struct {
	UnitOfMeasurement CodeDescription `json:"UnitOfMeasurement"`
	Weight            string          `json:"Weight"`
}

// Charge is a monetary amount; MonetaryValue is a decimal string.
type Charge struct {
	CurrencyCode  string `json:"CurrencyCode"`
	MonetaryValue string `json:"MonetaryValue"`
}

// ShipmentRatingOptions requests negotiated rates.
type ShipmentRatingOptions struct {
	NegotiatedRatesIndicator string `json:"NegotiatedRatesIndicator,omitempty"`
}

// NegotiatedRateCharges holds account-specific pricing.
type NegotiatedRateCharges struct {
	TotalCharge Charge `json:"TotalCharge"`
}

// ============================================================================
// Shipping API: POST /api/shipments/{version}/ship
// ============================================================================

// ShipmentRequestEnvelope wraps a shipment request.
type ShipmentRequestEnvelope struct {
	ShipmentRequest ShipmentRequest `json:"ShipmentRequest"`
}

// ShipmentRequest is the body of a shipping call.
type ShipmentRequest struct {
	Request            Request            `json:"Request"`
	Shipment           Shipment           `json:"Shipment"`
	LabelSpecification LabelSpecification `json:"LabelSpecification"`
}

// Shipment describes what is shipped, between whom, and how it is paid.
type Shipment struct {
	Description                       string                 `json:"Description,omitempty"`
	ShipmentRatingOptions             *ShipmentRatingOptions `json:"ShipmentRatingOptions,omitempty"`
	ItemizedChargesRequestedIndicator string                 `json:"ItemizedChargesRequestedIndicator,omitempty"`
	Shipper                           Party                  `json:"Shipper"`
	ShipTo                            Party                  `json:"ShipTo"`
	ShipFrom                          Party                  `json:"ShipFrom"`
	PaymentInformation                PaymentInformation     `json:"PaymentInformation"`
	Service                           CodeDescription        `json:"Service"`
	Package                           []Package              `json:"Package"`
}

// PaymentInformation says who pays for the shipment.
type PaymentInformation struct {
	ShipmentCharge ShipmentCharge `json:"ShipmentCharge"`
}

// ShipmentCharge is a single charge assignment; Type "01" is transportation.
type ShipmentCharge struct {
	Type        string       `json:"Type"`
	BillShipper *BillShipper `json:"BillShipper,omitempty"`
}

// BillShipper bills the shipper's account.
type BillShipper struct {
	AccountNumber string `json:"AccountNumber"`
}

// LabelSpecification selects the label image format.
type LabelSpecification struct {
	LabelImageFormat CodeDescription `json:"LabelImageFormat"`
	HTTPUserAgent    string          `json:"HTTPUserAgent,omitempty"`
	LabelStockSize   *LabelStockSize `json:"LabelStockSize,omitempty"`
}

// LabelStockSize is required for thermal (ZPL) labels.
type LabelStockSize struct {
	Height string `json:"Height"`
	Width  string `json:"Width"`
}

// ShipmentResponseEnvelope wraps a shipment response.
type ShipmentResponseEnvelope struct {
	ShipmentResponse ShipmentResponse `json:"ShipmentResponse"`
}

// ShipmentResponse is the body returned by a shipping call.
type ShipmentResponse struct {
	Response        Response        `json:"Response"`
	ShipmentResults ShipmentResults `json:"ShipmentResults"`
}

// ShipmentResults carries charges, the shipment id and per-package results.
type ShipmentResults struct {
	ShipmentCharges              *ShipmentCharges       `json:"ShipmentCharges,omitempty"`
	NegotiatedRateCharges        *NegotiatedRateCharges `json:"NegotiatedRateCharges,omitempty"`
	ShipmentIdentificationNumber string                 `json:"ShipmentIdentificationNumber"`
	PackageResults               List[PackageResult]    `json:"PackageResults"`
}

// ShipmentCharges breaks down the published charges.
type ShipmentCharges struct {
	TransportationCharges Charge `json:"TransportationCharges"`
	ServiceOptionsCharges Charge `json:"ServiceOptionsCharges"`
	TotalCharges          Charge `json:"TotalCharges"`
}

// PackageResult is the tracking number and label of one package.
type PackageResult struct {
	TrackingNumber string         `json:"TrackingNumber"`
	ShippingLabel  *ShippingLabel `json:"ShippingLabel,omitempty"`
}

// ShippingLabel is a base64 encoded label image.
type ShippingLabel struct {
	ImageFormat  CodeDescription `json:"ImageFormat"`
	GraphicImage string          `json:"GraphicImage"`
	HTMLImage    string          `json:"HTMLImage,omitempty"`
}

// ============================================================================
// Rating API: POST /api/rating/{version}/Shop
// ============================================================================

// RateRequestEnvelope wraps a rate request.
type RateRequestEnvelope struct {
	RateRequest RateRequest `json:"RateRequest"`
}

// RateRequest is the body of a rating call.
type RateRequest struct {
	Request  Request      `json:"Request"`
	Shipment RateShipment `json:"Shipment"`
}

// RateShipment is the shipment description used for rating.
type RateShipment struct {
	Shipper               Party                  `json:"Shipper"`
	ShipTo                Party                  `json:"ShipTo"`
	ShipFrom              Party                  `json:"ShipFrom"`
	Service               *CodeDescription       `json:"Service,omitempty"`
	ShipmentRatingOptions *ShipmentRatingOptions `json:"ShipmentRatingOptions,omitempty"`
	Package               []Package              `json:"Package"`
}

// RateResponseEnvelope wraps a rate response.
type RateResponseEnvelope struct {
	RateResponse RateResponse `json:"RateResponse"`
}

// RateResponse lists a rated shipment per service.
type RateResponse struct {
	Response      Response            `json:"Response"`
	RatedShipment List[RatedShipment] `json:"RatedShipment"`
}

// RatedShipment is the price of one service.
type RatedShipment struct {
	Service               CodeDescription        `json:"Service"`
	TransportationCharges Charge                 `json:"TransportationCharges"`
	ServiceOptionsCharges Charge                 `json:"ServiceOptionsCharges"`
	TotalCharges          Charge                 `json:"TotalCharges"`
	NegotiatedRateCharges *NegotiatedRateCharges `json:"NegotiatedRateCharges,omitempty"`
	GuaranteedDelivery    *GuaranteedDelivery    `json:"GuaranteedDelivery,omitempty"`
}

// GuaranteedDelivery is present for time-definite services.
type GuaranteedDelivery struct {
	BusinessDaysInTransit string `json:"BusinessDaysInTransit"`
	DeliveryByTime        string `json:"DeliveryByTime,omitempty"`
}

// ============================================================================
// Void API: DELETE /api/shipments/{version}/void/cancel/{id}
// ============================================================================

// VoidResponseEnvelope wraps a void response.
type VoidResponseEnvelope struct {
	VoidShipmentResponse VoidShipmentResponse `json:"VoidShipmentResponse"`
}

// VoidShipmentResponse is the body returned by a void call.
type VoidShipmentResponse struct {
	Response      Response      `json:"Response"`
	SummaryResult SummaryResult `json:"SummaryResult"`
}

// SummaryResult is the outcome of a void.
type SummaryResult struct {
	Status CodeDescription `json:"Status"`
}

// ============================================================================
// Label recovery API: POST /api/labels/{version}/recovery
// ============================================================================

// LabelRecoveryRequestEnvelope wraps a label recovery request.
type LabelRecoveryRequestEnvelope struct {
	LabelRecoveryRequest LabelRecoveryRequest `json:"LabelRecoveryRequest"`
}

// LabelRecoveryRequest asks for the label of a tracking number.
type LabelRecoveryRequest struct {
	LabelSpecification LabelSpecification `json:"LabelSpecification"`
	TrackingNumber     string             `json:"TrackingNumber"`
}

// LabelRecoveryResponseEnvelope wraps a label recovery response.
type LabelRecoveryResponseEnvelope struct {
	LabelRecoveryResponse LabelRecoveryResponse `json:"LabelRecoveryResponse"`
}

// LabelRecoveryResponse carries recovered labels.
type LabelRecoveryResponse struct {
	Response                     Response          `json:"Response"`
	ShipmentIdentificationNumber string            `json:"ShipmentIdentificationNumber,omitempty"`
	LabelResults                 List[LabelResult] `json:"LabelResults"`
}

// LabelResult is a recovered label.
type LabelResult struct {
	TrackingNumber string     `json:"TrackingNumber"`
	LabelImage     LabelImage `json:"LabelImage"`
}

// LabelImage is a base64 encoded label image.
type LabelImage struct {
	LabelImageFormat CodeDescription `json:"LabelImageFormat"`
	GraphicImage     string          `json:"GraphicImage"`
}

// ============================================================================
// Errors
// ============================================================================

// ErrorDetail is one entry of a UPS error body.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError represents an error returned by the UPS API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Errors     []ErrorDetail
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return e.Code + ": " + e.Message
}

// errorBody is the shape of UPS error responses.
type errorBody struct {
	Response struct {
		Errors []ErrorDetail `json:"errors"`
	} `json:"response"`
}
