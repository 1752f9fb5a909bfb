package server

import (
	"fmt"
	"path"
	"strings"

	"github.com/tournevent/upsbridge/pkg/shipper"
)

type errorResponse struct {
	Error string `json:"error"`
}

type money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type rate struct {
	RateID      string `json:"rate_id"`
	Carrier     string `json:"carrier"`
	ServiceCode string `json:"service_code"`
	ServiceName string `json:"service_name"`
	ServiceType string `json:"service_type"`
	BaseRate    money  `json:"base_rate"`
	TotalPrice  money  `json:"total_price"`
	TransitDays int    `json:"transit_days,omitempty"`
	Guaranteed  bool   `json:"guaranteed"`
}

type quoteResponse struct {
	ParcelID string `json:"parcel_id"`
	Rates    []rate `json:"rates"`
}

type cancelResponse struct {
	ShipmentID string `json:"shipment_id"`
	Status     string `json:"status"`
}

func moneyToDTO(m shipper.Money) money {
	return money{
		Amount:   fmt.Sprintf("%.2f", m.Amount),
		Currency: m.Currency,
	}
}

func ratesToDTO(rates []shipper.RateOption) []rate {
	out := make([]rate, len(rates))
	for i, r := range rates {
		out[i] = rate{
			RateID:      r.RateID,
			Carrier:     r.Carrier,
			ServiceCode: r.ServiceCode,
			ServiceName: r.ServiceName,
			ServiceType: string(r.ServiceType),
			BaseRate:    moneyToDTO(r.BaseRate),
			TotalPrice:  moneyToDTO(r.TotalPrice),
			TransitDays: r.TransitDays,
			Guaranteed:  r.Guaranteed,
		}
	}
	return out
}

func extension(name string) string {
	return strings.TrimPrefix(path.Ext(name), ".")
}

func contentType(ext string) string {
	switch shipper.LabelFormat(strings.ToLower(ext)) {
	case shipper.LabelGIF:
		return "image/gif"
	case shipper.LabelPNG:
		return "image/png"
	case shipper.LabelPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
