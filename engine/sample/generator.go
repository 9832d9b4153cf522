package sample

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/schema"
)

// -----------------------------------------------------------------------------
// Generator
// -----------------------------------------------------------------------------

const (
	// maxDepth caps recursion into nested objects and arrays so
	// self-referential schemas terminate.
	maxDepth = 5

	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// sampleEpoch anchors generated timestamps so seeded runs produce identical
// dates regardless of wall-clock time.
var sampleEpoch = time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)

var (
	sampleFirstNames = []string{"Ada", "Grace", "Alan", "Edsger", "Barbara", "Donald"}
	sampleLastNames  = []string{"Reyes", "Okafor", "Lindgren", "Tanaka", "Moreau", "Novak"}
	sampleWords      = []string{"alpha", "harbor", "cedar", "monsoon", "quartz", "violet", "summit", "ember"}
	sampleDomains    = []string{"example.com", "example.org", "mesh.test"}
	sampleCities     = []string{"Lisbon", "Osaka", "Nairobi", "Oslo", "Montevideo"}
	sampleCountries  = []string{"Portugal", "Japan", "Kenya", "Norway", "Uruguay"}
)

// Generator synthesizes realistic values from JSON schema fragments. It backs
// dry-run execution, where service-backed nodes return generated output
// instead of calling external systems.
//
// A Generator is deterministic for a given seed: identical schemas produce
// identical values, which keeps dry-run output reproducible in tests.
type Generator struct {
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed fixes the random source so generation is reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// NewGenerator creates a sample data generator. Without options the source is
// time-seeded.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FromSchema generates a value conforming to the given schema fragment.
func (g *Generator) FromSchema(s schema.Schema) (any, error) {
	if s == nil {
		return nil, fmt.Errorf("cannot generate sample from nil schema")
	}
	return g.generate(map[string]any(s), 0), nil
}

// OutputFromSchema generates a task output document. Non-object schemas wrap
// their value under "result" so outputs stay JSON objects.
func (g *Generator) OutputFromSchema(s schema.Schema) (core.Output, error) {
	value, err := g.FromSchema(s)
	if err != nil {
		return nil, err
	}
	if m, ok := value.(map[string]any); ok {
		return core.Output(m), nil
	}
	return core.Output{"result": value}, nil
}

// -----------------------------------------------------------------------------
// Generation rules
// -----------------------------------------------------------------------------

// generate applies the precedence rules: explicit default, then first enum
// entry, then type-directed synthesis.
func (g *Generator) generate(node map[string]any, depth int) any {
	if node == nil {
		return nil
	}
	if def, ok := node["default"]; ok {
		return def
	}
	if enum, ok := node["enum"].([]any); ok && len(enum) > 0 {
		return enum[0]
	}
	switch schemaType(node) {
	case "object":
		return g.generateObject(node, depth)
	case "array":
		return g.generateArray(node, depth)
	case "string":
		return g.generateString(node)
	case "integer":
		return g.generateInteger(node)
	case "number":
		return g.generateNumber(node)
	case "boolean":
		return g.generateBoolean(node)
	case "null":
		return nil
	default:
		// Untyped nodes fall back on their structure.
		if _, ok := node["properties"]; ok {
			return g.generateObject(node, depth)
		}
		if _, ok := node["items"]; ok {
			return g.generateArray(node, depth)
		}
		return nil
	}
}

func (g *Generator) generateObject(node map[string]any, depth int) map[string]any {
	result := make(map[string]any)
	if depth >= maxDepth {
		return result
	}
	properties, ok := node["properties"].(map[string]any)
	if !ok {
		return result
	}
	required := requiredSet(node)
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	// Sorted iteration keeps seeded output stable across runs.
	sort.Strings(names)
	for _, name := range names {
		include := required[name] || g.rng.Float64() < 0.5
		if !include {
			continue
		}
		propSchema, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		result[name] = g.generate(propSchema, depth+1)
	}
	return result
}

func (g *Generator) generateArray(node map[string]any, depth int) []any {
	if depth >= maxDepth {
		return []any{}
	}
	count := 2 + g.rng.Intn(2)
	items, ok := node["items"].(map[string]any)
	if !ok {
		items = map[string]any{"type": "string"}
	}
	result := make([]any, 0, count)
	for i := 0; i < count; i++ {
		result = append(result, g.generate(items, depth+1))
	}
	return result
}

func (g *Generator) generateString(node map[string]any) string {
	if format, ok := node["format"].(string); ok {
		if value, handled := g.formatted(format); handled {
			return value
		}
	}
	if hint, ok := descriptionStringHint(node); ok {
		return g.hinted(hint)
	}
	minLen, maxLen := lengthBounds(node)
	return g.randomString(minLen, maxLen)
}

func (g *Generator) formatted(format string) (string, bool) {
	switch format {
	case "date-time":
		return g.sampleTime().Format(time.RFC3339), true
	case "date":
		return g.sampleTime().Format("2006-01-02"), true
	case "time":
		return g.sampleTime().Format("15:04:05"), true
	case "email":
		return g.sampleEmail(), true
	case "uri", "url":
		return g.sampleURL(), true
	case "uuid":
		return g.sampleUUID(), true
	case "hostname":
		return g.pick(sampleWords) + "." + g.pick(sampleDomains), true
	case "ipv4":
		return fmt.Sprintf("%d.%d.%d.%d",
			10+g.rng.Intn(240), g.rng.Intn(256), g.rng.Intn(256), 1+g.rng.Intn(254)), true
	case "ipv6":
		return fmt.Sprintf("2001:db8::%x:%x", g.rng.Intn(0xffff), g.rng.Intn(0xffff)), true
	default:
		return "", false
	}
}

func (g *Generator) hinted(hint string) string {
	switch hint {
	case "email":
		return g.sampleEmail()
	case "url":
		return g.sampleURL()
	case "id":
		return g.sampleUUID()
	case "name":
		return g.pick(sampleFirstNames) + " " + g.pick(sampleLastNames)
	case "phone":
		return fmt.Sprintf("+1-555-%03d-%04d", g.rng.Intn(1000), g.rng.Intn(10000))
	case "date":
		return g.sampleTime().Format(time.RFC3339)
	case "address":
		word := g.pick(sampleWords)
		return fmt.Sprintf("%d %s Street", 1+g.rng.Intn(999), strings.ToUpper(word[:1])+word[1:])
	case "city":
		return g.pick(sampleCities)
	case "country":
		return g.pick(sampleCountries)
	default:
		return g.randomString(8, 12)
	}
}

func (g *Generator) generateInteger(node map[string]any) int64 {
	lower, upper := numericBounds(node, 1, 100)
	span := int64(upper) - int64(lower)
	if span <= 0 {
		return int64(lower)
	}
	return int64(lower) + g.rng.Int63n(span+1)
}

func (g *Generator) generateNumber(node map[string]any) float64 {
	lower, upper := numericBounds(node, 0, 100)
	if upper <= lower {
		return lower
	}
	value := lower + g.rng.Float64()*(upper-lower)
	return math.Round(value*100) / 100
}

func (g *Generator) generateBoolean(node map[string]any) bool {
	description := strings.ToLower(stringProp(node, "description"))
	for _, keyword := range []string{"active", "enabled", "valid", "success"} {
		if strings.Contains(description, keyword) {
			return true
		}
	}
	for _, keyword := range []string{"inactive", "disabled", "deleted", "archived"} {
		if strings.Contains(description, keyword) {
			return false
		}
	}
	return g.rng.Float64() < 0.5
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (g *Generator) sampleTime() time.Time {
	offset := time.Duration(g.rng.Intn(90*24)) * time.Hour
	return sampleEpoch.Add(offset)
}

func (g *Generator) sampleEmail() string {
	first := strings.ToLower(g.pick(sampleFirstNames))
	last := strings.ToLower(g.pick(sampleLastNames))
	return fmt.Sprintf("%s.%s@%s", first, last, g.pick(sampleDomains))
}

func (g *Generator) sampleURL() string {
	return fmt.Sprintf("https://%s/%s", g.pick(sampleDomains), g.pick(sampleWords))
}

func (g *Generator) sampleUUID() string {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return uuid.Nil.String()
	}
	return id.String()
}

func (g *Generator) randomString(minLen, maxLen int) string {
	length := minLen
	if maxLen > minLen {
		length += g.rng.Intn(maxLen - minLen + 1)
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumeric[g.rng.Intn(len(alphanumeric))]
	}
	return string(b)
}

func (g *Generator) pick(values []string) string {
	return values[g.rng.Intn(len(values))]
}

func schemaType(node map[string]any) string {
	switch t := node["type"].(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func requiredSet(node map[string]any) map[string]bool {
	set := make(map[string]bool)
	if required, ok := node["required"].([]any); ok {
		for _, r := range required {
			if name, ok := r.(string); ok {
				set[name] = true
			}
		}
	}
	if required, ok := node["required"].([]string); ok {
		for _, name := range required {
			set[name] = true
		}
	}
	return set
}

// descriptionStringHint scans the description (and property-style "title")
// for keywords that suggest a realistic value shape.
func descriptionStringHint(node map[string]any) (string, bool) {
	text := strings.ToLower(stringProp(node, "description") + " " + stringProp(node, "title"))
	if text == " " {
		return "", false
	}
	for _, hint := range []string{"email", "url", "phone", "address", "city", "country", "name", "date", "id"} {
		if strings.Contains(text, hint) {
			return hint, true
		}
	}
	return "", false
}

func stringProp(node map[string]any, key string) string {
	if s, ok := node[key].(string); ok {
		return s
	}
	return ""
}

func lengthBounds(node map[string]any) (int, int) {
	minLen, maxLen := 8, 12
	if v, ok := core.ParseAnyInt(node["minLength"]); ok && v > 0 {
		minLen = v
	}
	if v, ok := core.ParseAnyInt(node["maxLength"]); ok && v >= minLen {
		maxLen = v
	} else if maxLen < minLen {
		maxLen = minLen
	}
	return minLen, maxLen
}

func numericBounds(node map[string]any, defLower, defUpper float64) (float64, float64) {
	lower, upper := defLower, defUpper
	if v, ok := node["minimum"]; ok {
		lower = core.AsFloat(v)
		if upper < lower {
			upper = lower + (defUpper - defLower)
		}
	}
	if v, ok := node["maximum"]; ok {
		upper = core.AsFloat(v)
	}
	return lower, upper
}
