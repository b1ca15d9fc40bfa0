package logits

import (
	"fmt"
	"strings"
)

// Strategy names accepted by Params.Name.
const (
	NameNone        = "none"
	NameTemperature = "temperature"
	NameTopP        = "top_p"
	NameTopK        = "top_k"
	NameMirostatV2  = "mirostat_v2"
)

// Params is the flat, file-friendly description of a strategy.
// Nil Temperature, TopP and TopK mean "unspecified"; an explicit zero is
// kept (greedy temperature, smallest nucleus, no top-k cut). For the
// remaining numeric fields zero means default.
type Params struct {
	Name        string   `json:"strategy" yaml:"strategy" toml:"strategy"`
	Temperature *float32 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty" yaml:"top_p,omitempty" toml:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty" yaml:"top_k,omitempty" toml:"top_k,omitempty"`
	MinKeep     int      `json:"min_keep" yaml:"min_keep" toml:"min_keep"`
	Tau         float32  `json:"tau" yaml:"tau" toml:"tau"`
	Eta         float32  `json:"eta" yaml:"eta" toml:"eta"`
	Seed        int64    `json:"seed" yaml:"seed" toml:"seed"`
}

const (
	defaultTemperature = 0.9
	defaultTopP        = 0.95
	defaultTopK        = 40
	defaultMinKeep     = 1
	defaultTau         = 5.0
	defaultEta         = 0.1
)

// Strategy resolves p into a Strategy value.
func (p Params) Strategy() (Strategy, error) {
	minKeep := p.MinKeep
	if minKeep <= 0 {
		minKeep = defaultMinKeep
	}
	switch name := strings.ToLower(strings.TrimSpace(p.Name)); name {
	case NameNone:
		return None{}, nil
	case "", NameTemperature, "temp":
		return Temperature{T: valueOr(p.Temperature, defaultTemperature)}, nil
	case NameTopP, "top-p":
		top := valueOr(p.TopP, defaultTopP)
		if top < 0 || top > 1 {
			return nil, fmt.Errorf("top_p must be in [0, 1], got %g", top)
		}
		return TopP{P: top, MinKeep: minKeep}, nil
	case NameTopK, "top-k":
		return TopK{K: valueOr(p.TopK, defaultTopK), MinKeep: minKeep}, nil
	case NameMirostatV2, "mirostat-v2", "mirostat":
		return MirostatV2{Tau: orDefault(p.Tau, defaultTau), Eta: orDefault(p.Eta, defaultEta)}, nil
	default:
		return nil, fmt.Errorf("unknown sampling strategy %q (expected none, temperature, top_p, top_k, or mirostat_v2)", p.Name)
	}
}

func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(v, def float32) float32 {
	if v == 0 {
		return def
	}
	return v
}
