// Package booking turns agency and parcel records into UPS shipments.
package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/tournevent/upsbridge/pkg/shipper"
	"gopkg.in/yaml.v3"
)

// ErrInvalidParcel is returned for parcels missing data UPS requires.
var ErrInvalidParcel = errors.New("invalid parcel")

// Agency is the business that ships parcels and pays for them.
type Agency struct {
	ID          string `yaml:"id" json:"id"`
	Company     string `yaml:"company" json:"company"`
	FirstName   string `yaml:"firstname" json:"firstname"`
	LastName    string `yaml:"lastname" json:"lastname"`
	Phone       string `yaml:"phone" json:"phone"`
	Email       string `yaml:"email" json:"email"`
	Address     string `yaml:"address" json:"address"`
	City        string `yaml:"city" json:"city"`
	StateCode   string `yaml:"state_code" json:"state_code"`
	Zipcode     string `yaml:"zipcode" json:"zipcode"`
	CountryCode string `yaml:"country_code" json:"country_code"`
}

// FullName joins first and last name.
func (a Agency) FullName() string {
	return joinName(a.FirstName, a.LastName)
}

func (a Agency) contact() shipper.Contact {
	return shipper.Contact{
		Name:          a.FullName(),
		Company:       a.Company,
		AttentionName: a.FullName(),
		Phone:         a.Phone,
		Email:         a.Email,
	}
}

func (a Agency) address() shipper.Address {
	return shipper.Address{
		Name:         a.FullName(),
		Company:      a.Company,
		Line1:        a.Address,
		City:         a.City,
		ProvinceCode: a.StateCode,
		PostalCode:   a.Zipcode,
		CountryCode:  countryOrUS(a.CountryCode),
		Phone:        a.Phone,
		Email:        a.Email,
	}
}

// Receiver is the person or company a parcel is delivered to.
type Receiver struct {
	Company     string `yaml:"company" json:"company"`
	FirstName   string `yaml:"firstname" json:"firstname"`
	LastName    string `yaml:"lastname" json:"lastname"`
	Phone       string `yaml:"phone" json:"phone"`
	Email       string `yaml:"email" json:"email"`
	Address     string `yaml:"address" json:"address"`
	City        string `yaml:"city" json:"city"`
	StateCode   string `yaml:"state_code" json:"state_code"`
	Zipcode     string `yaml:"zipcode" json:"zipcode"`
	CountryCode string `yaml:"country_code" json:"country_code"`
	Residential bool   `yaml:"residential" json:"residential"`
}

// FullName joins first and last name.
func (r Receiver) FullName() string {
	return joinName(r.FirstName, r.LastName)
}

func (r Receiver) contact() shipper.Contact {
	return shipper.Contact{
		Name:          r.FullName(),
		Company:       r.Company,
		AttentionName: r.FullName(),
		Phone:         r.Phone,
		Email:         r.Email,
	}
}

func (r Receiver) address() shipper.Address {
	return shipper.Address{
		Name:          r.FullName(),
		Company:       r.Company,
		Line1:         r.Address,
		City:          r.City,
		ProvinceCode:  r.StateCode,
		PostalCode:    r.Zipcode,
		CountryCode:   countryOrUS(r.CountryCode),
		Phone:         r.Phone,
		Email:         r.Email,
		IsResidential: r.Residential,
	}
}

// Parcel is a single package sent by an agency. Dimensions are inches and
// weight is pounds.
type Parcel struct {
	ID       string   `yaml:"id" json:"id"`
	AgencyID string   `yaml:"agency_id" json:"agency_id"`
	Receiver Receiver `yaml:"receiver" json:"receiver"`
	Depth    float64  `yaml:"depth" json:"depth"`
	Width    float64  `yaml:"width" json:"width"`
	Height   float64  `yaml:"height" json:"height"`
	Weight   float64  `yaml:"weight" json:"weight"`
}

// Validate reports the first missing or impossible field.
func (p Parcel) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidParcel)
	case p.AgencyID == "":
		return fmt.Errorf("%w: agency_id is required", ErrInvalidParcel)
	case p.Weight <= 0:
		return fmt.Errorf("%w: weight must be positive", ErrInvalidParcel)
	case p.Depth < 0 || p.Width < 0 || p.Height < 0:
		return fmt.Errorf("%w: dimensions must not be negative", ErrInvalidParcel)
	case p.Receiver.Address == "" || p.Receiver.City == "" || p.Receiver.Zipcode == "":
		return fmt.Errorf("%w: receiver address, city and zipcode are required", ErrInvalidParcel)
	case p.Receiver.Company == "" && p.Receiver.FullName() == "":
		return fmt.Errorf("%w: receiver needs a company or a name", ErrInvalidParcel)
	}
	return nil
}

func (p Parcel) pkg() shipper.Package {
	return shipper.Package{
		ID:            p.ID,
		Length:        p.Depth,
		Width:         p.Width,
		Height:        p.Height,
		DimensionUnit: shipper.DimensionIN,
		Weight:        p.Weight,
		WeightUnit:    shipper.WeightLB,
		PackageType:   shipper.PackageBox,
	}
}

// LoadParcel reads a parcel from a YAML file.
func LoadParcel(fsys afero.Fs, path string) (Parcel, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Parcel{}, fmt.Errorf("reading parcel file: %w", err)
	}

	var p Parcel
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Parcel{}, fmt.Errorf("parsing parcel file %s: %w", path, err)
	}
	return p, nil
}

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func countryOrUS(code string) string {
	if code == "" {
		return "US"
	}
	return strings.ToUpper(code)
}
