//go:build onnx

package ner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// onnxBackend runs a BERT token-classification export through ONNX Runtime
type onnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewONNXBackend opens modelPath with ONNX Runtime. The shared library is
// taken from ONNXRUNTIME_SHARED_LIB or ORT_SHLIB when set.
func NewONNXBackend(logger *zap.Logger, modelPath string) (Backend, error) {
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx runtime environment init failed: %w", err)
		}
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect onnx model %s: %w", modelPath, err)
	}
	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("onnx model %s reports no outputs", modelPath)
	}

	// Keep the model's declared input order, restricted to what we can feed
	var inputNames []string
	for _, ii := range inputsInfo {
		if inputKind(ii.Name) != "" {
			inputNames = append(inputNames, ii.Name)
		}
	}
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("onnx model %s has no recognised inputs", modelPath)
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx session creation failed: %w", err)
	}

	logger.Info("ONNX token classifier ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
	)
	return &onnxBackend{session: sess, inputNames: inputNames, logger: logger}, nil
}

func inputKind(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "input_ids") || name == "input" || strings.HasSuffix(name, "ids") && !strings.Contains(name, "type"):
		return "ids"
	case strings.Contains(name, "attention") || strings.Contains(name, "mask"):
		return "mask"
	case strings.Contains(name, "token_type") || strings.Contains(name, "segment"):
		return "type"
	default:
		return ""
	}
}

// Classify implements Backend
func (b *onnxBackend) Classify(ctx context.Context, input *TokenizedInput) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, fmt.Errorf("onnx backend closed")
	}

	seqLen := input.Len()
	shape := ort.NewShape(1, int64(seqLen))
	byKind := map[string][]int64{
		"ids":  input.InputIDs,
		"mask": input.AttentionMask,
		"type": input.TokenTypeIDs,
	}

	inputs := make([]ort.Value, 0, len(b.inputNames))
	for _, name := range b.inputNames {
		tensor, err := ort.NewTensor(shape, byKind[inputKind(name)])
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		defer tensor.Destroy()
		inputs = append(inputs, tensor)
	}

	// One output; let ORT allocate it
	outputs := make([]ort.Value, 1)
	if err := b.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}

	// [1, seq, labels]
	outShape := logits.GetShape()
	if len(outShape) != 3 || int(outShape[1]) != seqLen {
		return nil, fmt.Errorf("unexpected output shape %v for sequence length %d", outShape, seqLen)
	}
	numLabels := int(outShape[2])
	data := logits.GetData()

	rows := make([][]float32, seqLen)
	for i := range rows {
		rows[i] = make([]float32, numLabels)
		copy(rows[i], data[i*numLabels:(i+1)*numLabels])
	}
	return rows, nil
}

// Close releases the session and the runtime environment
func (b *onnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	return ort.DestroyEnvironment()
}
