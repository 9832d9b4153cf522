package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/events"
)

const defaultKVTTLHours = 24

// Local is an in-process gateway for development and tests. Key-value pairs
// live in memory with lazy TTL expiry, artifacts live on an afero filesystem,
// events loop back to the configured emitter and HTTP requests go out through
// resty.
type Local struct {
	mu      sync.Mutex
	kv      map[string]kvEntry
	fs      afero.Fs
	http    *resty.Client
	emitter events.Emitter
	clock   func() time.Time
}

type kvEntry struct {
	value     any
	expiresAt time.Time
}

// LocalOption configures a Local gateway.
type LocalOption func(*Local)

// WithFS stores artifacts on the given filesystem instead of memory.
func WithFS(fs afero.Fs) LocalOption {
	return func(l *Local) { l.fs = fs }
}

// WithEmitter routes events_send calls to the given emitter.
func WithEmitter(emitter events.Emitter) LocalOption {
	return func(l *Local) { l.emitter = emitter }
}

// WithHTTPClient replaces the resty client used for http_request.
func WithHTTPClient(client *resty.Client) LocalOption {
	return func(l *Local) { l.http = client }
}

// WithClock overrides the time source used for TTL expiry.
func WithClock(clock func() time.Time) LocalOption {
	return func(l *Local) { l.clock = clock }
}

// NewLocal creates a local gateway backed by memory, an in-memory filesystem
// and a default resty client.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		kv:      make(map[string]kvEntry),
		fs:      afero.NewMemMapFs(),
		http:    resty.New().SetTimeout(30 * time.Second),
		emitter: events.Noop{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CallTool dispatches to the named tool.
func (l *Local) CallTool(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	switch name {
	case ToolKVGet:
		return l.kvGet(params)
	case ToolKVSet:
		return l.kvSet(params)
	case ToolArtifactsGet:
		return l.artifactsGet(params)
	case ToolArtifactsPut:
		return l.artifactsPut(params)
	case ToolArtifactsList:
		return l.artifactsList(params)
	case ToolEventsSend:
		return l.eventsSend(ctx, params)
	case ToolHTTPRequest:
		return l.httpRequest(ctx, params)
	case ToolAgentInvoke:
		return l.agentInvoke(params)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// -----------------------------------------------------------------------------
// Key-value store
// -----------------------------------------------------------------------------

func (l *Local) kvGet(params map[string]any) (map[string]any, error) {
	p, err := core.FromMapDefault[struct {
		Key string `json:"key"`
	}](params)
	if err != nil {
		return nil, fmt.Errorf("kv_get: %w", err)
	}
	if p.Key == "" {
		return nil, fmt.Errorf("kv_get: missing 'key' parameter")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.kv[p.Key]
	if !ok {
		return map[string]any{"value": nil}, nil
	}
	if !entry.expiresAt.IsZero() && l.clock().After(entry.expiresAt) {
		delete(l.kv, p.Key)
		return map[string]any{"value": nil}, nil
	}
	return map[string]any{"value": entry.value}, nil
}

func (l *Local) kvSet(params map[string]any) (map[string]any, error) {
	p, err := core.FromMapDefault[struct {
		Key      string  `json:"key"`
		TTLHours float64 `json:"ttl_hours"`
	}](params)
	if err != nil {
		return nil, fmt.Errorf("kv_set: %w", err)
	}
	if p.Key == "" {
		return nil, fmt.Errorf("kv_set: missing 'key' parameter")
	}
	value, ok := params["value"]
	if !ok {
		return nil, fmt.Errorf("kv_set: missing 'value' parameter")
	}
	ttl := p.TTLHours
	if ttl <= 0 {
		ttl = defaultKVTTLHours
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kv[p.Key] = kvEntry{
		value:     value,
		expiresAt: l.clock().Add(time.Duration(ttl * float64(time.Hour))),
	}
	return map[string]any{"success": true}, nil
}

// -----------------------------------------------------------------------------
// Artifacts
// -----------------------------------------------------------------------------

func (l *Local) artifactsGet(params map[string]any) (map[string]any, error) {
	p, err := core.FromMapDefault[struct {
		Key string `json:"key"`
	}](params)
	if err != nil {
		return nil, fmt.Errorf("artifacts_get: %w", err)
	}
	if p.Key == "" {
		return nil, fmt.Errorf("artifacts_get: missing 'key' parameter")
	}
	data, err := afero.ReadFile(l.fs, artifactPath(p.Key))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{"content": nil}, nil
		}
		return nil, fmt.Errorf("artifacts_get: read %s: %w", p.Key, err)
	}
	return map[string]any{"content": string(data)}, nil
}

func (l *Local) artifactsPut(params map[string]any) (map[string]any, error) {
	p, err := core.FromMapDefault[struct {
		Key     string `json:"key"`
		Content string `json:"content"`
	}](params)
	if err != nil {
		return nil, fmt.Errorf("artifacts_put: %w", err)
	}
	if p.Key == "" {
		return nil, fmt.Errorf("artifacts_put: missing 'key' parameter")
	}
	if _, ok := params["content"]; !ok {
		return nil, fmt.Errorf("artifacts_put: missing 'content' parameter")
	}
	target := artifactPath(p.Key)
	if err := l.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("artifacts_put: mkdir: %w", err)
	}
	if err := afero.WriteFile(l.fs, target, []byte(p.Content), 0o644); err != nil {
		return nil, fmt.Errorf("artifacts_put: write %s: %w", p.Key, err)
	}
	return map[string]any{"success": true}, nil
}

func (l *Local) artifactsList(params map[string]any) (map[string]any, error) {
	p, err := core.FromMapDefault[struct {
		Prefix string `json:"prefix"`
	}](params)
	if err != nil {
		return nil, fmt.Errorf("artifacts_list: %w", err)
	}
	keys := make([]string, 0)
	err = afero.Walk(l.fs, artifactRoot, func(walked string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		key := strings.TrimPrefix(walked, artifactRoot+"/")
		if p.Prefix == "" || strings.HasPrefix(key, p.Prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts_list: %w", err)
	}
	sort.Strings(keys)
	listed := make([]any, len(keys))
	for i, k := range keys {
		listed[i] = k
	}
	return map[string]any{"keys": listed}, nil
}

const artifactRoot = "/artifacts"

func artifactPath(key string) string {
	return path.Join(artifactRoot, path.Clean("/"+key))
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

func (l *Local) eventsSend(ctx context.Context, params map[string]any) (map[string]any, error) {
	p, err := core.FromMapDefault[struct {
		DetailType  string `json:"detailType"`
		Source      string `json:"source"`
		ExecutionID string `json:"executionId"`
	}](params)
	if err != nil {
		return nil, fmt.Errorf("events_send: %w", err)
	}
	if p.DetailType == "" {
		return nil, fmt.Errorf("events_send: missing 'detailType' parameter")
	}
	detail, ok := params["detail"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("events_send: missing 'detail' parameter")
	}
	source := p.Source
	if source == "" {
		source = events.DefaultSource
	}
	l.emitter.Emit(ctx, events.Event{
		Kind:        events.Kind(p.DetailType),
		ExecutionID: core.ID(p.ExecutionID),
		Timestamp:   l.clock().UTC(),
		Source:      source,
		Detail:      detail,
	})
	return map[string]any{"success": true}, nil
}

// -----------------------------------------------------------------------------
// HTTP
// -----------------------------------------------------------------------------

func (l *Local) httpRequest(ctx context.Context, params map[string]any) (map[string]any, error) {
	p, err := core.FromMapDefault[struct {
		Method  string            `json:"method"`
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
		Query   map[string]string `json:"query"`
	}](params)
	if err != nil {
		return nil, fmt.Errorf("http_request: %w", err)
	}
	if p.URL == "" {
		return nil, fmt.Errorf("http_request: missing 'url' parameter")
	}
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = "GET"
	}
	req := l.http.R().SetContext(ctx)
	if len(p.Headers) > 0 {
		req.SetHeaders(p.Headers)
	}
	if len(p.Query) > 0 {
		req.SetQueryParams(p.Query)
	}
	if body, ok := params["body"]; ok && body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, p.URL)
	if err != nil {
		return nil, fmt.Errorf("http_request: %s %s: %w", method, p.URL, err)
	}
	headers := make(map[string]any, len(resp.Header()))
	for k := range resp.Header() {
		headers[k] = resp.Header().Get(k)
	}
	return map[string]any{
		"status":  resp.StatusCode(),
		"headers": headers,
		"body":    decodeBody(resp.Body()),
	}, nil
}

func decodeBody(raw []byte) any {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	}
	return string(raw)
}

// -----------------------------------------------------------------------------
// Agents
// -----------------------------------------------------------------------------

func (l *Local) agentInvoke(params map[string]any) (map[string]any, error) {
	p, err := core.FromMapDefault[struct {
		Agent  string `json:"agent"`
		Prompt string `json:"prompt"`
	}](params)
	if err != nil {
		return nil, fmt.Errorf("agent_invoke: %w", err)
	}
	agent := p.Agent
	if agent == "" {
		agent = "default"
	}
	// The local gateway has no model runtime behind it. It answers with a
	// deterministic envelope so flows exercising agent nodes stay runnable.
	return map[string]any{
		"agent":        agent,
		"response":     fmt.Sprintf("[local] agent %s received %d chars", agent, len(p.Prompt)),
		"finishReason": "stop",
	}, nil
}
