package credits

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"datapulse/pkg/contracts/domain"
)

// File is the on-disk credit assignment read by the CLI. YAML and JSON are
// both accepted; a bare list of entries is read as the basic variant.
type File struct {
	Capabilities domain.CreditCapabilities `yaml:"capabilities"`
	Credits      []domain.SubjectCredit    `yaml:"credits"`
}

// ErrNoEntries is returned for a credit file that assigns nothing
var ErrNoEntries = errors.New("credit file has no credit entries")

// ParseFile decodes a credit file
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err == nil {
		if len(f.Credits) == 0 {
			return nil, ErrNoEntries
		}
		return &f, nil
	}

	var list []domain.SubjectCredit
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("credit file is neither a credit document nor a list of entries: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrNoEntries
	}
	return &File{Credits: list}, nil
}

// LoadFile reads and decodes the credit file at path
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credit file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
