package document

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects an export encoding.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists every supported export encoding.
var Formats = []Format{FormatXML, FormatJSON, FormatYAML}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXML, "":
		return FormatXML, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (supported: xml, json, yaml)", s)
	}
}

// Encode writes n to w in the given format.
func Encode(w io.Writer, n *Node, format Format) error {
	switch format {
	case FormatXML, "":
		data, err := MarshalIndentXML(n, "  ")
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(n)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)
		return enc.Encode(n)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// Decode reads a document in the given format.
func Decode(data []byte, format Format) (*Node, error) {
	switch format {
	case FormatXML, "":
		return ParseXML(data)
	case FormatJSON:
		var n Node
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
		return &n, nil
	case FormatYAML:
		var n Node
		if err := yaml.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
