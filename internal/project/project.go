// Package project loads the per-conversation project file: which model to
// run, where the conversation lives, how prompts are framed, and how tokens
// are sampled.
package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samcharles93/parlor/internal/backend"
	"github.com/samcharles93/parlor/internal/fileformat"
	"github.com/samcharles93/parlor/internal/logits"
	"github.com/samcharles93/parlor/internal/prompt"
)

const (
	DefaultContextSize = 1024
	DefaultBatchSize   = 512
	DefaultGPULayers   = 100
	DefaultTemplate    = "chatml"
)

// Run sizes the native context. Zero values mean "use the default".
type Run struct {
	ContextSize int `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	BatchSize   int `json:"n_batch" yaml:"n_batch" toml:"n_batch"`
	GPULayers   int `json:"n_gpu_layers" yaml:"n_gpu_layers" toml:"n_gpu_layers"`
	Threads     int `json:"threads" yaml:"threads" toml:"threads"`
}

// Project is the decoded project file.
type Project struct {
	ModelPath    string                     `json:"model_path" yaml:"model_path" toml:"model_path"`
	Prompts      string                     `json:"prompts" yaml:"prompts" toml:"prompts"`
	TemplateName string                     `json:"template" yaml:"template" toml:"template"`
	Backend      string                     `json:"backend" yaml:"backend" toml:"backend"`
	Run          Run                        `json:"run" yaml:"run" toml:"run"`
	Sampling     logits.Params              `json:"sampling" yaml:"sampling" toml:"sampling"`
	Templates    map[string]prompt.Template `json:"templates" yaml:"templates" toml:"templates"`

	// dir anchors relative paths; it is the project file's directory.
	dir string
}

// Load reads a project file (TOML, YAML, or JSON by extension), fills
// defaults and validates it.
func Load(path string) (Project, error) {
	var p Project
	if err := fileformat.ReadFile(path, &p); err != nil {
		return Project{}, fmt.Errorf("load project: %w", err)
	}
	p.dir = filepath.Dir(path)
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return Project{}, fmt.Errorf("project %s: %w", path, err)
	}
	return p, nil
}

// ApplyDefaults replaces zero run values and empty names with defaults.
func (p *Project) ApplyDefaults() {
	if p.Run.ContextSize == 0 {
		p.Run.ContextSize = DefaultContextSize
	}
	if p.Run.BatchSize == 0 {
		p.Run.BatchSize = DefaultBatchSize
	}
	if p.Run.GPULayers == 0 {
		p.Run.GPULayers = DefaultGPULayers
	}
	if strings.TrimSpace(p.TemplateName) == "" {
		p.TemplateName = DefaultTemplate
	}
	if strings.TrimSpace(p.Backend) == "" {
		p.Backend = backend.Llama
	}
}

// Validate reports configuration that cannot run.
func (p Project) Validate() error {
	var errs []error
	name, err := backend.Normalize(p.Backend)
	if err != nil {
		errs = append(errs, err)
	}
	if name == backend.Llama && strings.TrimSpace(p.ModelPath) == "" {
		errs = append(errs, errors.New("model_path is required for the llama backend"))
	}
	if strings.TrimSpace(p.Prompts) == "" {
		errs = append(errs, errors.New("prompts is required"))
	}
	if p.Run.ContextSize < 0 || p.Run.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("run sizes must be positive (ctx_size=%d, n_batch=%d)", p.Run.ContextSize, p.Run.BatchSize))
	}
	if _, err := p.Template(); err != nil {
		errs = append(errs, err)
	}
	if _, err := p.Strategy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Template resolves TemplateName against the project's own table first,
// then the built-in presets.
func (p Project) Template() (prompt.Template, error) {
	if t, ok := p.Templates[p.TemplateName]; ok {
		return t, nil
	}
	if t, ok := prompt.Builtin(p.TemplateName); ok {
		return t, nil
	}
	return prompt.Template{}, fmt.Errorf("unknown template %q (define [templates.%s] or use one of %s)",
		p.TemplateName, p.TemplateName, strings.Join(prompt.Names(), ", "))
}

// Strategy resolves the sampling section.
func (p Project) Strategy() (logits.Strategy, error) {
	return p.Sampling.Strategy()
}

// PromptsPath is the conversation file path, resolved against the project
// file's directory when relative.
func (p Project) PromptsPath() string { return p.resolve(p.Prompts) }

// ResolvedModelPath is ModelPath resolved like PromptsPath.
func (p Project) ResolvedModelPath() string { return p.resolve(p.ModelPath) }

func (p Project) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// ModelParams converts the project into backend load parameters.
func (p Project) ModelParams() backend.ModelParams {
	return backend.ModelParams{
		Path:      p.ResolvedModelPath(),
		GPULayers: p.Run.GPULayers,
		Seed:      p.Sampling.Seed,
	}
}

// ContextParams converts the run section into context parameters.
func (p Project) ContextParams() backend.ContextParams {
	return backend.ContextParams{
		ContextSize: p.Run.ContextSize,
		BatchSize:   p.Run.BatchSize,
		Threads:     p.Run.Threads,
	}
}
