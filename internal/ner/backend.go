package ner

import (
	"context"
	"errors"
)

// ErrRuntimeUnavailable is returned when the binary was built without ONNX
// Runtime support
var ErrRuntimeUnavailable = errors.New("onnx runtime not available in this build (rebuild with -tags onnx)")

// Backend runs a token-classification model. Classify returns one row of
// label logits per input token.
type Backend interface {
	Classify(ctx context.Context, input *TokenizedInput) ([][]float32, error)
	Close() error
}
