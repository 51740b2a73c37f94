package ner

import (
	"fmt"
	"sync"

	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/logger"
	"github.com/raaihank/prompt-shield/internal/privacy"
	"go.uber.org/zap"
)

// BackendFactory opens a model file
type BackendFactory func(log *zap.Logger, modelPath string) (Backend, error)

// Loader builds the entity recogniser at most once. Any failure, including
// a panic inside native initialisation, leaves the process on the noop
// recogniser.
type Loader struct {
	cfg         config.EntitiesConfig
	logger      *logger.Logger
	openBackend BackendFactory

	once       sync.Once
	recognizer privacy.EntityRecognizer
	closer     func() error
	err        error
}

// NewLoader creates a loader for the ONNX backend
func NewLoader(cfg config.EntitiesConfig, log *logger.Logger) *Loader {
	return NewLoaderWithBackend(cfg, log, NewONNXBackend)
}

// NewLoaderWithBackend creates a loader with a custom backend factory
func NewLoaderWithBackend(cfg config.EntitiesConfig, log *logger.Logger, open BackendFactory) *Loader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{cfg: cfg, logger: log.WithComponent("ner"), openBackend: open}
}

// Recognizer returns the loaded recogniser, or privacy.NoopRecognizer when
// entities are disabled or loading failed. It never returns nil.
func (l *Loader) Recognizer() privacy.EntityRecognizer {
	l.once.Do(l.load)
	return l.recognizer
}

// Err returns the load failure, if any
func (l *Loader) Err() error {
	l.once.Do(l.load)
	return l.err
}

// Close releases the model backend
func (l *Loader) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}

func (l *Loader) load() {
	l.recognizer = privacy.NoopRecognizer{}

	if !l.cfg.Enabled {
		l.logger.Info("Entity recognition disabled")
		return
	}

	rec, err := l.build()
	if err != nil {
		l.err = err
		l.logger.Warn("Entity recognition unavailable, continuing with pattern detection only",
			zap.Error(err),
			zap.String("model", l.cfg.ModelPath),
		)
		return
	}

	l.recognizer = rec
	l.closer = rec.Close
	l.logger.Info("Entity recognition enabled",
		zap.String("model", l.cfg.ModelPath),
		zap.Int("labels", len(rec.labels)),
	)
}

func (l *Loader) build() (rec *Recognizer, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec, err = nil, fmt.Errorf("entity model initialisation panicked: %v", p)
		}
	}()

	vocab, err := LoadVocab(l.cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	tokenizer, err := NewTokenizer(vocab, l.cfg.MaxLength, l.cfg.Lowercase)
	if err != nil {
		return nil, err
	}

	backend, err := l.openBackend(l.logger.Logger, l.cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	rec, err = NewRecognizer(tokenizer, backend, l.cfg.Labels, l.logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return rec, nil
}
