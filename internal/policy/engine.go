// Package policy evaluates an optional Rego policy that can hold back a due
// prompt on top of quiet mode and quiet times.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/promptlog/internal/metrics"
	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Query is evaluated against the loaded modules. A policy defines
// `suppress` (bool) and optionally `reason` (string) in package
// promptlog.prompt.
const Query = "data.promptlog.prompt"

// Input describes a prompt that is about to fire.
type Input struct {
	Now       time.Time
	Elapsed   time.Duration
	Interval  time.Duration
	QuietMode bool
	Reason    string
}

func (in Input) document() map[string]interface{} {
	return map[string]interface{}{
		"now":         in.Now.Format(time.RFC3339),
		"weekday":     strings.ToLower(in.Now.Weekday().String()),
		"day_of_week": int(in.Now.Weekday()),
		"time":        in.Now.Format("15:04"),
		"hour":        in.Now.Hour(),
		"minute":      in.Now.Minute(),
		"elapsed_ms":  in.Elapsed.Milliseconds(),
		"interval_ms": in.Interval.Milliseconds(),
		"quiet_mode":  in.QuietMode,
		"reason":      in.Reason,
	}
}

// Decision is the policy outcome.
type Decision struct {
	Suppress bool
	Reason   string
}

// Engine wraps a prepared rego query.
type Engine struct {
	source string
	logger zerolog.Logger

	mu      sync.RWMutex
	query   rego.PreparedEvalQuery
	modules map[string]*ast.Module
	load    func() (map[string]string, error)
}

// NewEngine loads every .rego file in dir.
func NewEngine(dir string, logger zerolog.Logger) (*Engine, error) {
	return newEngine(dir, func() (map[string]string, error) { return readDir(dir) }, logger)
}

// NewEngineFromModules compiles in-memory sources keyed by file name.
func NewEngineFromModules(sources map[string]string, logger zerolog.Logger) (*Engine, error) {
	return newEngine("inline", func() (map[string]string, error) { return sources, nil }, logger)
}

func newEngine(source string, load func() (map[string]string, error), logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		source: source,
		logger: logger.With().Str("component", "policy").Logger(),
		load:   load,
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	e.logger.Info().Str("source", source).Int("modules", len(e.modules)).Msg("Prompt policy loaded")
	return e, nil
}

func readDir(dir string) (map[string]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", dir)
	}

	sources := make(map[string]string, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}
		sources[file] = string(content)
	}
	return sources, nil
}

// Reload re-reads and recompiles the policy. On failure the previous
// policy stays active.
func (e *Engine) Reload() error {
	sources, err := e.load()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	modules := make(map[string]*ast.Module, len(sources))
	opts := []func(*rego.Rego){rego.Query(Query)}
	for _, name := range names {
		module, err := ast.ParseModule(name, sources[name])
		if err != nil {
			return fmt.Errorf("failed to parse policy file %s: %w", name, err)
		}
		modules[name] = module
		opts = append(opts, rego.ParsedModule(module))
		e.logger.Debug().Str("file", name).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to prepare prompt query: %w", err)
	}

	e.mu.Lock()
	e.query = query
	e.modules = modules
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy for in. An undefined result means no suppression.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	start := time.Now()
	results, err := query.Eval(ctx, rego.EvalInput(in.document()))
	metrics.PolicyEvalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return Decision{}, fmt.Errorf("prompt policy evaluation failed: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("prompt policy result is not an object: %T", results[0].Expressions[0].Value)
	}

	var d Decision
	if v, ok := doc["suppress"]; ok {
		b, ok := v.(bool)
		if !ok {
			return Decision{}, fmt.Errorf("prompt policy suppress is not a bool: %T", v)
		}
		d.Suppress = b
	}
	if v, ok := doc["reason"].(string); ok {
		d.Reason = v
	}
	return d, nil
}
