package classify

import (
	"context"
	"fmt"
	"math"
)

// DefaultTemperature scales cosine similarities before the softmax.
const DefaultTemperature = 10

// PrototypeModel scores an embedding by cosine similarity to one embedded
// reference text per label. It works with any embedding size.
type PrototypeModel struct {
	labels      []string
	centers     [][]float64
	temperature float64
}

// NewPrototypeModel embeds the descriptor's reference texts.
func NewPrototypeModel(ctx context.Context, embedder Embedder, d Descriptor) (*PrototypeModel, error) {
	if embedder == nil {
		return nil, &ModelError{Message: "prototype model needs an embedding model"}
	}
	if len(d.Prototypes) == 0 || len(d.Prototypes) != len(d.Labels) {
		return nil, &ModelError{Message: fmt.Sprintf("%d prototypes for %d labels", len(d.Prototypes), len(d.Labels))}
	}
	temperature := d.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	vectors, err := embedder.Embed(ctx, d.Prototypes)
	if err != nil {
		return nil, &ModelError{Message: "failed to embed prototypes", Cause: err}
	}
	if len(vectors) != len(d.Prototypes) {
		return nil, &ModelError{Message: fmt.Sprintf("embedding returned %d vectors for %d prototypes", len(vectors), len(d.Prototypes))}
	}

	centers := make([][]float64, len(vectors))
	for i, v := range vectors {
		c, ok := unit(v)
		if !ok {
			return nil, &ModelError{Message: fmt.Sprintf("prototype %q embedded to a zero vector", d.Labels[i])}
		}
		if i > 0 && len(c) != len(centers[0]) {
			return nil, &ModelError{Message: "prototype embeddings differ in size"}
		}
		centers[i] = c
	}

	return &PrototypeModel{labels: d.Labels, centers: centers, temperature: temperature}, nil
}

// Labels returns the label of each prototype, in order.
func (m *PrototypeModel) Labels() []string {
	return m.labels
}

// Predict returns a softmax over the scaled similarities.
func (m *PrototypeModel) Predict(input []float32) ([]float64, error) {
	if len(input) != len(m.centers[0]) {
		return nil, &ModelError{Message: fmt.Sprintf("input has %d values, model expects %d", len(input), len(m.centers[0]))}
	}
	x, ok := unit(input)
	if !ok {
		return nil, &ModelError{Message: "input embedding is a zero vector"}
	}

	out := make([]float64, len(m.centers))
	for j, c := range m.centers {
		var dot float64
		for i := range c {
			dot += c[i] * x[i]
		}
		out[j] = dot * m.temperature
	}
	activate(ActivationSoftmax, out)
	return out, nil
}

func unit(v []float32) ([]float64, bool) {
	out := make([]float64, len(v))
	var norm float64
	for i, f := range v {
		out[i] = float64(f)
		norm += out[i] * out[i]
	}
	if norm == 0 {
		return nil, false
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out, true
}
