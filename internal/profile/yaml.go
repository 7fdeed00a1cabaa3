package profile

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// EncodeYAML renders a profile as block-style YAML. Key order follows the
// canonical JSON document, and absent slots are written as null.
func EncodeYAML(p *Profile) ([]byte, error) {
	doc, err := Encode(p)
	if err != nil {
		return nil, err
	}

	// JSON is YAML; re-read it as a node tree so order and quoting survive.
	var node yaml.Node
	if err := yaml.Unmarshal(doc, &node); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	blockStyle(&node)

	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return out, nil
}

// blockStyle drops flow and quoting styles. Strings that would read back as
// another type are still quoted by the encoder because their tag is kept.
func blockStyle(n *yaml.Node) {
	switch n.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		n.Style &^= yaml.FlowStyle
	case yaml.ScalarNode:
		if n.Tag == "!!str" {
			n.Style = 0
		}
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// DecodeYAML parses a profile written by EncodeYAML or by hand.
func DecodeYAML(data []byte) (*Profile, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return Decode(doc)
}
