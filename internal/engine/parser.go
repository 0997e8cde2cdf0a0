package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/sasflow/internal/domain"
)

// Supported flow definition formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DetectFormat returns the document format implied by the file extension.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// LoadFlowSpec reads and parses a flow definition file.
//
// Fails with an *InputError (matching ErrInvalidInput) when:
//   - the extension is not .json, .yaml or .yml
//   - the file does not exist
//   - the content is not valid JSON/YAML
//   - the document has no "flows" key
//
// Unknown fields are ignored. No graph validation happens here, see Validate.
func LoadFlowSpec(path string) (*domain.FlowSpec, error) {
	if path == "" {
		return nil, &InputError{Path: path, Err: ErrSourceNotFound}
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &InputError{Path: path, Err: ErrSourceNotFound}
		}
		return nil, &InputError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}

	spec, err := ParseFlowSpec(data, format)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	return spec, nil
}

// ParseFlowSpec parses a flow definition document in the given format.
func ParseFlowSpec(data []byte, format string) (*domain.FlowSpec, error) {
	var spec domain.FlowSpec

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
	default:
		return nil, ErrUnsupportedFileType
	}

	if spec.Flows == nil {
		return nil, ErrMissingFlows
	}

	// "flowName": null is kept as an empty definition so validation can report it
	for name, def := range spec.Flows {
		if def == nil {
			spec.Flows[name] = &domain.FlowDef{}
		}
	}

	return &spec, nil
}
