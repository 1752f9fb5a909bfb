package booking

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tournevent/upsbridge/internal/labelstore"
	"github.com/tournevent/upsbridge/internal/telemetry"
	"github.com/tournevent/upsbridge/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Config holds booking configuration.
type Config struct {
	Carrier     string              // registry name of the carrier, empty for the registry default
	LabelFormat shipper.LabelFormat // requested label image format
}

// Result is what a booked parcel gets back.
type Result struct {
	ParcelID       string  `json:"parcel_id"`
	ShipmentID     string  `json:"shipment_id"`
	TrackingNumber string  `json:"tracking_number"`
	TrackingURL    string  `json:"tracking_url,omitempty"`
	Label          string  `json:"label"`
	Cost           float64 `json:"cost"`
	Currency       string  `json:"currency,omitempty"`
}

// Label is a stored label image.
type Label struct {
	Name   string
	Format shipper.LabelFormat
	Data   []byte
}

// Service books, quotes and cancels shipments for parcels.
type Service struct {
	config   Config
	registry *shipper.Registry
	agencies AgencyDirectory
	labels   *labelstore.Store
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
}

// NewService creates a booking service.
func NewService(
	cfg Config,
	registry *shipper.Registry,
	agencies AgencyDirectory,
	labels *labelstore.Store,
	logger *otelzap.Logger,
	metrics *telemetry.Metrics,
) *Service {
	if cfg.LabelFormat == "" {
		cfg.LabelFormat = shipper.LabelGIF
	}
	return &Service{
		config:   cfg,
		registry: registry,
		agencies: agencies,
		labels:   labels,
		logger:   logger,
		metrics:  metrics,
	}
}

// CreateShipment books parcel with the carrier, stores its label and
// returns the tracking number, label file name and cost.
func (s *Service) CreateShipment(ctx context.Context, parcel Parcel) (result *Result, err error) {
	start := time.Now()
	defer func() { s.record(ctx, "create_shipment", start, err) }()

	if err := parcel.Validate(); err != nil {
		return nil, err
	}
	agency, err := s.agencies.Agency(ctx, parcel.AgencyID)
	if err != nil {
		return nil, err
	}
	carrier, err := s.registry.Get(s.config.Carrier)
	if err != nil {
		return nil, err
	}

	resp, err := carrier.CreateOrder(ctx, s.orderRequest(agency, parcel))
	if err != nil {
		return nil, err
	}
	if len(resp.Labels) == 0 {
		return nil, fmt.Errorf("%w: shipment %s returned no label", shipper.ErrLabelNotAvailable, resp.OrderID)
	}

	label, err := s.storeLabel(resp.Labels[0])
	if err != nil {
		return nil, fmt.Errorf("storing label for %s: %w", resp.TrackingNumber, err)
	}

	s.logger.Ctx(ctx).Info("Parcel shipped",
		zap.String("parcel_id", parcel.ID),
		zap.String("agency_id", agency.ID),
		zap.String("tracking_number", resp.TrackingNumber),
		zap.String("label", label.Name),
	)

	return &Result{
		ParcelID:       parcel.ID,
		ShipmentID:     resp.OrderID,
		TrackingNumber: resp.TrackingNumber,
		TrackingURL:    resp.TrackingURL,
		Label:          label.Name,
		Cost:           resp.TotalCharged.Amount,
		Currency:       resp.TotalCharged.Currency,
	}, nil
}

// Quote prices parcel across the carrier's services, cheapest first.
func (s *Service) Quote(ctx context.Context, parcel Parcel) (rates []shipper.RateOption, err error) {
	start := time.Now()
	defer func() { s.record(ctx, "quote", start, err) }()

	if err := parcel.Validate(); err != nil {
		return nil, err
	}
	agency, err := s.agencies.Agency(ctx, parcel.AgencyID)
	if err != nil {
		return nil, err
	}

	req := &shipper.QuoteRequest{
		ShipperID:   parcel.ID,
		Origin:      agency.address(),
		Destination: parcel.Receiver.address(),
		Packages:    []shipper.Package{parcel.pkg()},
	}

	var carriers []string
	if s.config.Carrier != "" {
		carriers = []string{s.config.Carrier}
	}
	responses, err := s.registry.Quote(ctx, req, carriers...)
	if len(responses) == 0 {
		return nil, err
	}

	for _, resp := range responses {
		rates = append(rates, resp.Rates...)
	}
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].TotalPrice.Amount < rates[j].TotalPrice.Amount
	})
	return rates, nil
}

// Cancel voids a shipment by its shipment identification number.
func (s *Service) Cancel(ctx context.Context, shipmentID, reason string) (err error) {
	start := time.Now()
	defer func() { s.record(ctx, "cancel", start, err) }()

	carrier, err := s.registry.Get(s.config.Carrier)
	if err != nil {
		return err
	}
	if _, err := carrier.CancelOrder(ctx, &shipper.CancelOrderRequest{OrderID: shipmentID, Reason: reason}); err != nil {
		return err
	}

	s.logger.Ctx(ctx).Info("Shipment voided", zap.String("shipment_id", shipmentID))
	return nil
}

// RecoverLabel fetches the label of a tracking number again and stores it
// under a new name.
func (s *Service) RecoverLabel(ctx context.Context, trackingNumber string) (label *Label, err error) {
	start := time.Now()
	defer func() { s.record(ctx, "recover_label", start, err) }()

	carrier, err := s.registry.Get(s.config.Carrier)
	if err != nil {
		return nil, err
	}

	resp, err := carrier.GetLabel(ctx, &shipper.GetLabelRequest{
		TrackingNumber: trackingNumber,
		Format:         s.config.LabelFormat,
	})
	if err != nil {
		return nil, err
	}
	if resp.Label.Data == "" {
		return nil, fmt.Errorf("%w: %s", shipper.ErrLabelNotAvailable, trackingNumber)
	}

	return s.storeLabel(resp.Label)
}

// StoredLabel reads a label saved by an earlier call.
func (s *Service) StoredLabel(name string) ([]byte, error) {
	return s.labels.Read(name)
}

func (s *Service) orderRequest(agency Agency, parcel Parcel) *shipper.CreateOrderRequest {
	return &shipper.CreateOrderRequest{
		ShipperID:        agency.ID,
		Reference:        parcel.ID,
		Sender:           agency.contact(),
		SenderAddress:    agency.address(),
		Recipient:        parcel.Receiver.contact(),
		RecipientAddress: parcel.Receiver.address(),
		Packages:         []shipper.Package{parcel.pkg()},
		LabelFormat:      s.config.LabelFormat,
	}
}

func (s *Service) storeLabel(l shipper.Label) (*Label, error) {
	data, err := base64.StdEncoding.DecodeString(l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: label is not valid base64: %v", shipper.ErrInvalidResponse, err)
	}

	format := l.Format
	if format == "" {
		format = s.config.LabelFormat
	}
	name, err := s.labels.Save(format, data)
	if err != nil {
		return nil, err
	}
	return &Label{Name: name, Format: format, Data: data}, nil
}

// carrier is the registry name operations are labelled with.
func (s *Service) carrier() string {
	if s.config.Carrier != "" {
		return s.config.Carrier
	}
	return s.registry.Default()
}

func (s *Service) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		kind := ErrorKind(err)
		s.metrics.RecordError(s.carrier(), kind)
		s.logger.Ctx(ctx).Error("Booking operation failed",
			zap.String("operation", operation),
			zap.String("error_type", kind),
			zap.Error(err),
		)
	}
	s.metrics.RecordRequest(operation, s.carrier(), status, time.Since(start).Seconds())
}

// Error kinds returned by ErrorKind.
const (
	KindInvalidInput = "invalid_input"
	KindNotFound     = "not_found"
	KindAuth         = "auth"
	KindCarrier      = "carrier"
)

// ErrorKind classifies an error returned by Service.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParcel),
		errors.Is(err, shipper.ErrInvalidPackage),
		errors.Is(err, shipper.ErrInvalidAddress),
		errors.Is(err, labelstore.ErrInvalidName):
		return KindInvalidInput
	case errors.Is(err, ErrAgencyNotFound),
		errors.Is(err, labelstore.ErrNotFound):
		return KindNotFound
	case errors.Is(err, shipper.ErrAuthenticationFailed):
		return KindAuth
	default:
		return KindCarrier
	}
}
