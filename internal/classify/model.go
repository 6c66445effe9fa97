package classify

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/jonathan/feed-copilot/internal/fetch"
	"github.com/jonathan/feed-copilot/internal/schemas"
)

// Model maps an embedding vector to a distribution over labels.
type Model interface {
	Predict(input []float32) ([]float64, error)
}

// Activation names accepted in a model descriptor.
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationTanh    = "tanh"
	ActivationSigmoid = "sigmoid"
	ActivationSoftmax = "softmax"
)

// Layer is one fully connected layer: out[j] = act(sum_i Weights[j][i]*in[i] + Bias[j]).
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation,omitempty"`
}

// Descriptor formats.
const (
	FormatDense     = "dense"
	FormatPrototype = "prototype"
)

// BuiltinModel is the model location that resolves to the bundled descriptor.
const BuiltinModel = "builtin"

//go:embed models/builtin.json
var builtinDescriptor []byte

// Descriptor is the serialized form of a DenseModel or a PrototypeModel.
type Descriptor struct {
	Format      string   `json:"format"`
	Labels      []string `json:"labels,omitempty"`
	InputDim    int      `json:"input_dim,omitempty"`
	Layers      []Layer  `json:"layers,omitempty"`
	Prototypes  []string `json:"prototypes,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
}

// DenseModel is a feed-forward classifier head run in process.
type DenseModel struct {
	layers   []Layer
	labels   []string
	inputDim int
}

// NewDenseModel checks layer shapes and builds the model.
func NewDenseModel(d Descriptor) (*DenseModel, error) {
	if len(d.Layers) == 0 {
		return nil, &ModelError{Message: "descriptor has no layers"}
	}

	dim := d.InputDim
	for i, layer := range d.Layers {
		if len(layer.Weights) == 0 {
			return nil, &ModelError{Message: fmt.Sprintf("layer %d has no weights", i)}
		}
		if len(layer.Bias) != len(layer.Weights) {
			return nil, &ModelError{Message: fmt.Sprintf("layer %d: %d bias values for %d units", i, len(layer.Bias), len(layer.Weights))}
		}
		width := len(layer.Weights[0])
		for j, row := range layer.Weights {
			if len(row) != width {
				return nil, &ModelError{Message: fmt.Sprintf("layer %d: row %d has %d weights, want %d", i, j, len(row), width)}
			}
		}
		if dim != 0 && width != dim {
			return nil, &ModelError{Message: fmt.Sprintf("layer %d expects %d inputs, previous layer gives %d", i, width, dim)}
		}
		switch layer.Activation {
		case "", ActivationLinear, ActivationReLU, ActivationTanh, ActivationSigmoid, ActivationSoftmax:
		default:
			return nil, &ModelError{Message: fmt.Sprintf("layer %d: unknown activation %q", i, layer.Activation)}
		}
		if i == 0 && d.InputDim == 0 {
			d.InputDim = width
		}
		dim = len(layer.Weights)
	}

	return &DenseModel{layers: d.Layers, labels: d.Labels, inputDim: d.InputDim}, nil
}

// Labels returns the label table carried by the descriptor, if any.
func (m *DenseModel) Labels() []string {
	return m.labels
}

// InputDim is the embedding size the model expects.
func (m *DenseModel) InputDim() int {
	return m.inputDim
}

// Predict runs the forward pass.
func (m *DenseModel) Predict(input []float32) ([]float64, error) {
	if len(input) != m.inputDim {
		return nil, &ModelError{Message: fmt.Sprintf("input has %d values, model expects %d", len(input), m.inputDim)}
	}

	x := make([]float64, len(input))
	for i, v := range input {
		x[i] = float64(v)
	}

	for _, layer := range m.layers {
		out := make([]float64, len(layer.Weights))
		for j, row := range layer.Weights {
			sum := layer.Bias[j]
			for i, w := range row {
				sum += w * x[i]
			}
			out[j] = sum
		}
		activate(layer.Activation, out)
		x = out
	}

	return x, nil
}

func activate(name string, v []float64) {
	switch name {
	case ActivationReLU:
		for i := range v {
			v[i] = math.Max(0, v[i])
		}
	case ActivationTanh:
		for i := range v {
			v[i] = math.Tanh(v[i])
		}
	case ActivationSigmoid:
		for i := range v {
			v[i] = 1 / (1 + math.Exp(-v[i]))
		}
	case ActivationSoftmax:
		maxV := math.Inf(-1)
		for _, x := range v {
			maxV = math.Max(maxV, x)
		}
		var sum float64
		for i := range v {
			v[i] = math.Exp(v[i] - maxV)
			sum += v[i]
		}
		for i := range v {
			v[i] /= sum
		}
	}
}

func decodeDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := schemas.Validate(schemas.ModelDescriptor, data); err != nil {
		return d, &ModelError{Message: "invalid model descriptor", Cause: err}
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, &ModelError{Message: "failed to decode model descriptor", Cause: err}
	}
	return d, nil
}

// ParseDescriptor validates raw dense descriptor JSON and builds the model.
func ParseDescriptor(data []byte) (*DenseModel, error) {
	d, err := decodeDescriptor(data)
	if err != nil {
		return nil, err
	}
	if d.Format != FormatDense {
		return nil, &ModelError{Message: fmt.Sprintf("descriptor format %q is not %s", d.Format, FormatDense)}
	}
	return NewDenseModel(d)
}

// LoadModel reads a descriptor from BuiltinModel, an http(s) URL, a file:// URL
// or a local path. Prototype descriptors embed their reference texts with embedder.
func LoadModel(ctx context.Context, location string, embedder Embedder, opts *fetch.Options) (Model, error) {
	data, err := readDescriptor(ctx, location, opts)
	if err != nil {
		return nil, err
	}
	d, err := decodeDescriptor(data)
	if err != nil {
		return nil, err
	}
	switch d.Format {
	case FormatPrototype:
		return NewPrototypeModel(ctx, embedder, d)
	default:
		return NewDenseModel(d)
	}
}

func readDescriptor(ctx context.Context, location string, opts *fetch.Options) ([]byte, error) {
	switch {
	case location == "" || location == BuiltinModel:
		return builtinDescriptor, nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		res, err := fetch.URL(ctx, location, opts)
		if err != nil {
			return nil, &ModelError{Message: "failed to download model descriptor", Cause: err}
		}
		return []byte(res.HTML), nil
	default:
		raw, err := os.ReadFile(strings.TrimPrefix(location, "file://"))
		if err != nil {
			return nil, &ModelError{Message: "failed to read model descriptor", Cause: err}
		}
		return raw, nil
	}
}
