package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrAgencyNotFound is returned when a parcel names an unknown agency.
var ErrAgencyNotFound = errors.New("agency not found")

// AgencyDirectory looks up agencies by id.
type AgencyDirectory interface {
	Agency(ctx context.Context, id string) (Agency, error)
}

// YAMLDirectory is an AgencyDirectory loaded from a YAML file of the form
//
//	agencies:
//	  - id: "7"
//	    company: Acme Travel
//	    ...
type YAMLDirectory struct {
	agencies map[string]Agency
}

type directoryFile struct {
	Agencies []Agency `yaml:"agencies"`
}

// LoadYAMLDirectory reads path from fsys.
func LoadYAMLDirectory(fsys afero.Fs, path string) (*YAMLDirectory, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading agencies file: %w", err)
	}

	dir, err := ParseYAMLDirectory(data)
	if err != nil {
		return nil, fmt.Errorf("parsing agencies file %s: %w", path, err)
	}
	return dir, nil
}

// ParseYAMLDirectory builds a directory from YAML bytes. Ids must be unique.
func ParseYAMLDirectory(data []byte) (*YAMLDirectory, error) {
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	agencies := make(map[string]Agency, len(file.Agencies))
	for i, a := range file.Agencies {
		if a.ID == "" {
			return nil, fmt.Errorf("agency #%d has no id", i+1)
		}
		if _, dup := agencies[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agency id %q", a.ID)
		}
		agencies[a.ID] = a
	}
	return &YAMLDirectory{agencies: agencies}, nil
}

// Agency returns the agency with the given id.
func (d *YAMLDirectory) Agency(_ context.Context, id string) (Agency, error) {
	a, ok := d.agencies[id]
	if !ok {
		return Agency{}, fmt.Errorf("%w: %s", ErrAgencyNotFound, id)
	}
	return a, nil
}

// IDs returns all agency ids in sorted order.
func (d *YAMLDirectory) IDs() []string {
	ids := make([]string, 0, len(d.agencies))
	for id := range d.agencies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ AgencyDirectory = (*YAMLDirectory)(nil)
