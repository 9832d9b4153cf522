package task

import (
	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
)

// Display categories used by the builtin catalog.
const (
	CategoryControlFlow = "control-flow"
	CategoryData        = "data"
	CategoryService     = "service"
	CategoryTrigger     = "trigger"
)

// DisplayInfo is UI metadata for task catalogs and editors. It has no
// effect on execution.
type DisplayInfo struct {
	Category string   `json:"category"`
	Label    string   `json:"label"`
	Icon     string   `json:"icon,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Definition is the registry's catalog entry for one task type. The sample
// generator uses OutputSchema and SampleOutput to synthesize results for
// dry runs.
type Definition struct {
	Type         string        `json:"type"`
	DisplayInfo  DisplayInfo   `json:"displayInfo"`
	ConfigSchema schema.Schema `json:"configSchema,omitempty"`
	OutputSchema schema.Schema `json:"outputSchema,omitempty"`
	SampleOutput core.Output   `json:"sampleOutput,omitempty"`
}

// OutputSchemaProvider is implemented by tasks that declare the shape of
// their output. Dry runs synthesize results from this schema.
type OutputSchemaProvider interface {
	OutputSchema() schema.Schema
}

// SampleOutputProvider is implemented by tasks that carry a canned sample
// result. When present it takes precedence over schema synthesis.
type SampleOutputProvider interface {
	SampleOutput() core.Output
}
