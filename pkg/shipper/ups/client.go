// Package ups provides integration with the UPS shipping REST API.
package ups

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tournevent/upsbridge/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	carrierName = "ups"

	// DefaultServiceCode is UPS Ground.
	DefaultServiceCode = "03"

	requestSubVersion = "1601"
	labelUserAgent    = "Mozilla/4.5"
	customerPackaging = "02"
	billTransport     = "01"
)

// Config holds UPS configuration.
type Config struct {
	AccountNumber  string // shipper number, billed for every shipment
	BaseURL        string
	TransactionSrc string
	ServiceCode    string        // used when the order names no service
	Timeout        time.Duration // per-request timeout, default 30s
	UseMock        bool          // When true, uses mock API client
}

// Client is the UPS shipper client.
// It implements the shipper.Shipper interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new UPS client. tokens supplies bearer tokens to the HTTP
// client and is unused when cfg.UseMock is set.
func New(cfg Config, tokens TokenProvider, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:        cfg.BaseURL,
			TransactionSrc: cfg.TransactionSrc,
			Timeout:        cfg.Timeout,
		}, tokens)
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new UPS client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.ServiceCode == "" {
		cfg.ServiceCode = DefaultServiceCode
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/upsbridge/pkg/shipper/ups")
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// GetQuote shops UPS services for a shipment.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.QuoteResponse, error) {
	ctx, span := c.tracer.Start(ctx, "ups.GetQuote", trace.WithAttributes(
		attribute.Int("package_count", len(req.Packages)),
	))
	defer span.End()

	c.logger.Ctx(ctx).Info("Getting UPS quotes",
		zap.String("origin_postal_code", req.Origin.PostalCode),
		zap.String("destination_postal_code", req.Destination.PostalCode),
		zap.Int("package_count", len(req.Packages)),
	)

	origin := addressToParty(req.Origin, addressContact(req.Origin))
	origin.ShipperNumber = c.config.AccountNumber
	apiReq := &RateRequestEnvelope{
		RateRequest: RateRequest{
			Request: Request{
				RequestOption:        "Shop",
				TransactionReference: &TransactionReference{CustomerContext: req.ShipperID},
			},
			Shipment: RateShipment{
				Shipper:               origin,
				ShipTo:                addressToParty(req.Destination, addressContact(req.Destination)),
				ShipFrom:              addressToParty(req.Origin, addressContact(req.Origin)),
				ShipmentRatingOptions: &ShipmentRatingOptions{NegotiatedRatesIndicator: "X"},
				Package:               packagesToAPI(req.Packages, ""),
			},
		},
	}

	apiResp, err := c.apiClient.Rate(ctx, apiReq)
	if err != nil {
		return nil, c.fail(ctx, span, "rate", err)
	}

	return rateResponseToShipper(apiResp, req.Options.ServiceTypes), nil
}

// CreateOrder books a shipment with UPS. Labels come back inline.
func (c *Client) CreateOrder(ctx context.Context, req *shipper.CreateOrderRequest) (*shipper.CreateOrderResponse, error) {
	ctx, span := c.tracer.Start(ctx, "ups.CreateOrder", trace.WithAttributes(
		attribute.String("reference", req.Reference),
		attribute.Int("package_count", len(req.Packages)),
	))
	defer span.End()

	if len(req.Packages) == 0 {
		err := fmt.Errorf("%w: order has no packages", shipper.ErrInvalidPackage)
		return nil, c.fail(ctx, span, "ship", err)
	}

	c.logger.Ctx(ctx).Info("Creating UPS shipment",
		zap.String("reference", req.Reference),
		zap.String("recipient", req.Recipient.Name),
		zap.String("service_code", c.serviceCode(req)),
	)

	apiResp, err := c.apiClient.CreateShipment(ctx, c.buildShipmentRequest(req))
	if err != nil {
		return nil, c.fail(ctx, span, "ship", err)
	}

	resp, err := shipmentResponseToShipper(apiResp)
	if err != nil {
		return nil, c.fail(ctx, span, "ship", err)
	}
	resp.ServiceName = serviceName(c.serviceCode(req))

	span.SetAttributes(attribute.String("tracking_number", resp.TrackingNumber))
	c.logger.Ctx(ctx).Info("UPS shipment created",
		zap.String("shipment_id", resp.OrderID),
		zap.String("tracking_number", resp.TrackingNumber),
		zap.Float64("total_charged", resp.TotalCharged.Amount),
	)
	return resp, nil
}

// GetLabel recovers the label of a package by tracking number.
func (c *Client) GetLabel(ctx context.Context, req *shipper.GetLabelRequest) (*shipper.GetLabelResponse, error) {
	trackingNumber := req.TrackingNumber
	if trackingNumber == "" {
		trackingNumber = req.OrderID
	}

	ctx, span := c.tracer.Start(ctx, "ups.GetLabel", trace.WithAttributes(
		attribute.String("tracking_number", trackingNumber),
	))
	defer span.End()

	c.logger.Ctx(ctx).Info("Recovering UPS label",
		zap.String("tracking_number", trackingNumber),
		zap.String("format", string(req.Format)),
	)

	apiResp, err := c.apiClient.RecoverLabel(ctx, &LabelRecoveryRequestEnvelope{
		LabelRecoveryRequest: LabelRecoveryRequest{
			LabelSpecification: labelSpecification(req.Format),
			TrackingNumber:     trackingNumber,
		},
	})
	if err != nil {
		return nil, c.fail(ctx, span, "label", err)
	}

	return labelResponseToShipper(req.OrderID, apiResp), nil
}

// CancelOrder voids a shipment. OrderID is the shipment identification number.
func (c *Client) CancelOrder(ctx context.Context, req *shipper.CancelOrderRequest) (*shipper.CancelOrderResponse, error) {
	ctx, span := c.tracer.Start(ctx, "ups.CancelOrder", trace.WithAttributes(
		attribute.String("shipment_id", req.OrderID),
	))
	defer span.End()

	c.logger.Ctx(ctx).Info("Voiding UPS shipment",
		zap.String("shipment_id", req.OrderID),
		zap.String("reason", req.Reason),
	)

	apiResp, err := c.apiClient.VoidShipment(ctx, req.OrderID)
	if err != nil {
		return nil, c.fail(ctx, span, "void", err)
	}

	status := apiResp.VoidShipmentResponse.SummaryResult.Status
	if status.Code != "1" {
		err := shipper.NewShipperError(carrierName, "VOID_"+status.Code, status.Description).
			WithCause(shipper.ErrCancellationNotAllowed)
		return nil, c.fail(ctx, span, "void", err)
	}

	return &shipper.CancelOrderResponse{
		OrderID: req.OrderID,
		Status:  shipper.StatusCancelled,
	}, nil
}

// fail records err on the span, logs it and returns it as a ShipperError.
func (c *Client) fail(ctx context.Context, span trace.Span, op string, err error) error {
	err = toShipperError(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Ctx(ctx).Error("UPS API error", zap.String("operation", op), zap.Error(err))
	return err
}

func (c *Client) serviceCode(req *shipper.CreateOrderRequest) string {
	switch {
	case req.ServiceCode != "":
		return req.ServiceCode
	case isServiceCode(req.RateID):
		return req.RateID
	default:
		return c.config.ServiceCode
	}
}

// ============================================================================
// Conversion helpers: Shipper models -> API models
// ============================================================================

func (c *Client) buildShipmentRequest(req *shipper.CreateOrderRequest) *ShipmentRequestEnvelope {
	code := c.serviceCode(req)

	shipperParty := addressToParty(req.SenderAddress, req.Sender)
	shipperParty.ShipperNumber = c.config.AccountNumber

	shipFrom := addressToParty(req.SenderAddress, req.Sender)
	shipFrom.EMailAddress = req.Sender.Email

	shipTo := addressToParty(req.RecipientAddress, req.Recipient)
	shipTo.EMailAddress = req.Recipient.Email

	var description string
	if req.Reference != "" {
		description = "B_" + req.Reference
	}

	return &ShipmentRequestEnvelope{
		ShipmentRequest: ShipmentRequest{
			Request: Request{
				SubVersion:           requestSubVersion,
				RequestOption:        "nonvalidate",
				TransactionReference: &TransactionReference{CustomerContext: req.Reference},
			},
			Shipment: Shipment{
				Description:                       description,
				ShipmentRatingOptions:             &ShipmentRatingOptions{NegotiatedRatesIndicator: "X"},
				ItemizedChargesRequestedIndicator: "X",
				Shipper:                           shipperParty,
				ShipTo:                            shipTo,
				ShipFrom:                          shipFrom,
				PaymentInformation: PaymentInformation{
					ShipmentCharge: ShipmentCharge{
						Type:        billTransport,
						BillShipper: &BillShipper{AccountNumber: c.config.AccountNumber},
					},
				},
				Service: CodeDescription{Code: code, Description: serviceName(code)},
				Package: packagesToAPI(req.Packages, req.Reference),
			},
			LabelSpecification: labelSpecification(req.LabelFormat),
		},
	}
}

func addressToParty(addr shipper.Address, contact shipper.Contact) Party {
	name := contact.Company
	if name == "" {
		name = contact.Name
	}
	attention := contact.AttentionName
	if attention == "" {
		attention = contact.Name
	}

	var phone *Phone
	if p := contact.Phone; p != "" {
		phone = &Phone{Number: p}
	} else if addr.Phone != "" {
		phone = &Phone{Number: addr.Phone}
	}

	lines := []string{addr.Line1}
	if addr.Line2 != "" {
		lines = append(lines, addr.Line2)
	}

	country := addr.CountryCode
	if country == "" {
		country = "US"
	}

	party := Party{
		Name:          name,
		AttentionName: attention,
		Phone:         phone,
		Address: Address{
			AddressLine:       lines,
			City:              addr.City,
			StateProvinceCode: addr.ProvinceCode,
			PostalCode:        addr.PostalCode,
			CountryCode:       country,
		},
	}
	if addr.IsResidential {
		empty := ""
		party.Address.ResidentialAddressIndicator = &empty
	}
	return party
}

func addressContact(addr shipper.Address) shipper.Contact {
	return shipper.Contact{Name: addr.Name, Company: addr.Company, Phone: addr.Phone, Email: addr.Email}
}

func packagesToAPI(pkgs []shipper.Package, reference string) []Package {
	result := make([]Package, len(pkgs))
	for i, p := range pkgs {
		length, width, height := p.Length, p.Width, p.Height
		if p.DimensionUnit == shipper.DimensionCM {
			length, width, height = length/2.54, width/2.54, height/2.54
		}
		weight := p.Weight
		if p.WeightUnit == shipper.WeightKG {
			weight *= 2.20462
		}

		description := p.Description
		if description == "" && reference != "" {
			description = "C_" + reference
		}

		pkg := Package{
			Description: description,
			Packaging:   CodeDescription{Code: customerPackaging, Description: "Customer Supplied Package"},
			PackageWeight: PackageWeight{
				UnitOfMeasurement: CodeDescription{Code: "LBS", Description: "Pounds"},
				Weight:            formatMeasure(weight),
			},
		}
		if length > 0 || width > 0 || height > 0 {
			pkg.Dimensions = &Dimensions{
				UnitOfMeasurement: CodeDescription{Code: "IN", Description: "Inches"},
				Length:            formatMeasure(length),
				Width:             formatMeasure(width),
				Height:            formatMeasure(height),
			}
		}
		result[i] = pkg
	}
	return result
}

func labelSpecification(format shipper.LabelFormat) LabelSpecification {
	spec := LabelSpecification{HTTPUserAgent: labelUserAgent}
	switch format {
	case shipper.LabelZPL:
		spec.LabelImageFormat = CodeDescription{Code: "ZPL", Description: "ZPL"}
		spec.LabelStockSize = &LabelStockSize{Height: "6", Width: "4"}
	case shipper.LabelPNG:
		spec.LabelImageFormat = CodeDescription{Code: "PNG", Description: "PNG"}
	default:
		spec.LabelImageFormat = CodeDescription{Code: "GIF", Description: "GIF"}
	}
	return spec
}

// minMeasure is the smallest positive value formatMeasure renders.
const minMeasure = 0.01

// formatMeasure renders a dimension or weight with at most two decimals.
// Positive values never round down to zero.
func formatMeasure(v float64) string {
	r := math.Round(v*100) / 100
	if v > 0 && r < minMeasure {
		r = minMeasure
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// ============================================================================
// Conversion helpers: API models -> Shipper models
// ============================================================================

func shipmentResponseToShipper(resp *ShipmentResponseEnvelope) (*shipper.CreateOrderResponse, error) {
	results := resp.ShipmentResponse.ShipmentResults
	if len(results.PackageResults) == 0 || results.PackageResults[0].TrackingNumber == "" {
		return nil, fmt.Errorf("%w: shipment response has no package results", shipper.ErrInvalidResponse)
	}

	labels := make([]shipper.Label, 0, len(results.PackageResults))
	for _, pr := range results.PackageResults {
		if pr.ShippingLabel == nil || pr.ShippingLabel.GraphicImage == "" {
			continue
		}
		labels = append(labels, shipper.Label{
			Format: mapLabelFormat(pr.ShippingLabel.ImageFormat.Code),
			Data:   pr.ShippingLabel.GraphicImage,
		})
	}

	charge := Charge{}
	if results.NegotiatedRateCharges != nil && results.NegotiatedRateCharges.TotalCharge.MonetaryValue != "" {
		charge = results.NegotiatedRateCharges.TotalCharge
	} else if results.ShipmentCharges != nil {
		charge = results.ShipmentCharges.TotalCharges
	}
	total, err := chargeToMoney(charge)
	if err != nil {
		return nil, err
	}

	trackingNumber := results.PackageResults[0].TrackingNumber
	return &shipper.CreateOrderResponse{
		OrderID:        results.ShipmentIdentificationNumber,
		TrackingNumber: trackingNumber,
		TrackingURL:    "https://www.ups.com/track?tracknum=" + trackingNumber,
		Status:         shipper.StatusConfirmed,
		Carrier:        carrierName,
		TotalCharged:   total,
		Labels:         labels,
	}, nil
}

func rateResponseToShipper(resp *RateResponseEnvelope, wanted []shipper.ServiceType) *shipper.QuoteResponse {
	rates := make([]shipper.RateOption, 0, len(resp.RateResponse.RatedShipment))
	for _, rs := range resp.RateResponse.RatedShipment {
		serviceType := mapServiceType(rs.Service.Code)
		if len(wanted) > 0 && !containsServiceType(wanted, serviceType) {
			continue
		}

		charge := rs.TotalCharges
		if rs.NegotiatedRateCharges != nil && rs.NegotiatedRateCharges.TotalCharge.MonetaryValue != "" {
			charge = rs.NegotiatedRateCharges.TotalCharge
		}
		total, err := chargeToMoney(charge)
		if err != nil {
			continue
		}
		base, _ := chargeToMoney(rs.TransportationCharges)

		rate := shipper.RateOption{
			RateID:      rs.Service.Code,
			Carrier:     carrierName,
			ServiceCode: rs.Service.Code,
			ServiceName: serviceName(rs.Service.Code),
			ServiceType: serviceType,
			BaseRate:    base,
			TotalPrice:  total,
		}
		if rs.GuaranteedDelivery != nil {
			rate.Guaranteed = true
			rate.TransitDays, _ = strconv.Atoi(rs.GuaranteedDelivery.BusinessDaysInTransit)
		}
		rates = append(rates, rate)
	}

	ref := ""
	if tr := resp.RateResponse.Response.TransactionReference; tr != nil {
		ref = tr.CustomerContext
	}
	return &shipper.QuoteResponse{
		QuoteID: ref,
		Rates:   rates,
	}
}

func labelResponseToShipper(orderID string, resp *LabelRecoveryResponseEnvelope) *shipper.GetLabelResponse {
	results := resp.LabelRecoveryResponse.LabelResults
	out := &shipper.GetLabelResponse{OrderID: orderID}
	if out.OrderID == "" {
		out.OrderID = resp.LabelRecoveryResponse.ShipmentIdentificationNumber
	}
	for i, r := range results {
		label := shipper.Label{
			Format: mapLabelFormat(r.LabelImage.LabelImageFormat.Code),
			Data:   r.LabelImage.GraphicImage,
		}
		if i == 0 {
			out.Label = label
		} else {
			out.AdditionalLabels = append(out.AdditionalLabels, label)
		}
	}
	return out
}

func chargeToMoney(c Charge) (shipper.Money, error) {
	if c.MonetaryValue == "" {
		return shipper.Money{Currency: c.CurrencyCode}, nil
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(c.MonetaryValue), 64)
	if err != nil {
		return shipper.Money{}, fmt.Errorf("%w: monetary value %q", shipper.ErrInvalidResponse, c.MonetaryValue)
	}
	return shipper.Money{Amount: amount, Currency: c.CurrencyCode}, nil
}

// toShipperError normalizes API and token errors into a ShipperError.
func toShipperError(err error) error {
	var se *shipper.ShipperError
	if errors.As(err, &se) {
		return err
	}

	var ae *authError
	if errors.As(err, &ae) {
		return shipper.NewShipperError(carrierName, "AUTH_FAILED", "could not obtain access token").
			WithCause(fmt.Errorf("%w: %w", shipper.ErrAuthenticationFailed, ae.cause))
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		return shipper.NewShipperError(carrierName, apiErr.Code, apiErr.Message).
			WithStatusCode(status).
			WithRetryable(status == http.StatusTooManyRequests || status >= 500).
			WithCause(err)
	}

	return shipper.NewShipperError(carrierName, "API_ERROR", "UPS request failed").
		WithCause(err).
		WithRetryable(!errors.Is(err, shipper.ErrInvalidPackage) && !errors.Is(err, shipper.ErrInvalidResponse))
}

// ============================================================================
// Mapping helpers
// ============================================================================

var serviceNames = map[string]string{
	"01": "Next Day Air",
	"02": "2nd Day Air",
	"03": "Ground",
	"07": "Worldwide Express",
	"08": "Worldwide Expedited",
	"11": "Standard",
	"12": "3 Day Select",
	"13": "Next Day Air Saver",
	"14": "Next Day Air Early",
	"54": "Worldwide Express Plus",
	"59": "2nd Day Air A.M.",
	"65": "Saver",
}

func serviceName(code string) string {
	if name, ok := serviceNames[code]; ok {
		return name
	}
	return "UPS " + code
}

func isServiceCode(s string) bool {
	_, ok := serviceNames[s]
	return ok
}

func mapServiceType(code string) shipper.ServiceType {
	switch code {
	case "03", "11":
		return shipper.ServiceStandard
	case "02", "59", "12", "08":
		return shipper.ServiceExpress
	case "01", "14", "07", "54":
		return shipper.ServiceOvernight
	case "13", "65":
		return shipper.ServicePriority
	default:
		return shipper.ServiceStandard
	}
}

func containsServiceType(types []shipper.ServiceType, t shipper.ServiceType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func mapLabelFormat(code string) shipper.LabelFormat {
	switch strings.ToUpper(code) {
	case "GIF":
		return shipper.LabelGIF
	case "PNG":
		return shipper.LabelPNG
	case "ZPL":
		return shipper.LabelZPL
	case "PDF":
		return shipper.LabelPDF
	default:
		return shipper.LabelGIF
	}
}

var _ shipper.Shipper = (*Client)(nil)
