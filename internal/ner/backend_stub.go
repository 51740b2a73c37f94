//go:build !onnx

package ner

import "go.uber.org/zap"

// NewONNXBackend is unavailable without the 'onnx' build tag
func NewONNXBackend(logger *zap.Logger, modelPath string) (Backend, error) {
	return nil, ErrRuntimeUnavailable
}
