package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// ConfigurationError reports a missing or unusable input that prevents a
// scenario from starting. It is raised before any network call.
type ConfigurationError struct {
	Option string
	Value  string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s=%q: %v", e.Option, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Decode reads one JSON service descriptor.
func Decode(r io.Reader) (*Service, error) {
	var s Service
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding service descriptor: %w", err)
	}
	return &s, nil
}

// Normalize returns a copy of s in the shape the registry returns it: meta
// values are passed through JSON, so numbers become float64 and nested maps
// become map[string]any.
func Normalize(s *Service) (*Service, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding service descriptor: %w", err)
	}
	var out Service
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding service descriptor: %w", err)
	}
	return &out, nil
}

// LoadFile reads a service descriptor template from a JSON file.
func LoadFile(path string) (*Service, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigurationError{
				Option: "filename",
				Value:  path,
				Err:    fmt.Errorf("template file does not exist; create it or set the filename option"),
			}
		}
		return nil, &ConfigurationError{Option: "filename", Value: path, Err: err}
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, &ConfigurationError{Option: "filename", Value: path, Err: err}
	}
	return s, nil
}
