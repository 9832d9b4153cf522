package core

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// AsMapDefault converts any JSON-serializable value into a plain map. It is
// the canonical bridge between typed task configs and the raw node config
// documents stored in workflow definitions.
func AsMapDefault(config any) (map[string]any, error) {
	bytes, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	var configMap map[string]any
	if err := json.Unmarshal(bytes, &configMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config to map: %w", err)
	}
	return configMap, nil
}

// FromMapDefault decodes a raw config document into a typed struct. Decoding
// is weakly typed so documents loaded from YAML or JSON may carry numbers and
// booleans as strings without failing.
func FromMapDefault[T any](data any) (T, error) {
	var config T

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &config,
	})
	if err != nil {
		return config, err
	}

	return config, decoder.Decode(data)
}
