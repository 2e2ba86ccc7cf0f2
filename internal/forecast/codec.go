package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	artifactFormat = 1
	artifactKind   = "ridge-ar"
)

// artifact is the msgpack document stored in the blob store
type artifact struct {
	Format   int       `msgpack:"format"`
	Kind     string    `msgpack:"kind"`
	LookBack int       `msgpack:"look_back"`
	Weights  []float64 `msgpack:"weights"`
	Bias     float64   `msgpack:"bias"`
	Lambda   float64   `msgpack:"lambda"`
	Samples  int       `msgpack:"samples"`
	FittedAt time.Time `msgpack:"fitted_at"`
}

// RidgeCodec serializes Ridge models with msgpack
type RidgeCodec struct{}

// Encode serializes a *Ridge
func (RidgeCodec) Encode(m Model) ([]byte, error) {
	r, ok := m.(*Ridge)
	if !ok || r == nil {
		return nil, fmt.Errorf("cannot encode model of type %T", m)
	}
	return msgpack.Marshal(artifact{
		Format:   artifactFormat,
		Kind:     artifactKind,
		LookBack: r.LookBack(),
		Weights:  r.Weights,
		Bias:     r.Bias,
		Lambda:   r.Lambda,
		Samples:  r.Samples,
		FittedAt: r.FittedAt,
	})
}

// Decode parses and validates an artifact
func (RidgeCodec) Decode(data []byte) (Model, error) {
	var a artifact
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Format != artifactFormat || a.Kind != artifactKind {
		return nil, fmt.Errorf("unsupported artifact %s v%d", a.Kind, a.Format)
	}
	if a.LookBack <= 0 || len(a.Weights) != a.LookBack {
		return nil, fmt.Errorf("artifact look-back %d does not match %d weights", a.LookBack, len(a.Weights))
	}
	for _, w := range append(append([]float64(nil), a.Weights...), a.Bias) {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("artifact contains non-finite weights")
		}
	}
	return &Ridge{
		Weights:  a.Weights,
		Bias:     a.Bias,
		Lambda:   a.Lambda,
		Samples:  a.Samples,
		FittedAt: a.FittedAt,
	}, nil
}
