package privacy

import (
	"sync"

	"github.com/raaihank/prompt-shield/internal/config"
)

var (
	defaultOnce     sync.Once
	defaultDetector *Detector
	defaultErr      error
)

// Default returns the process-wide regex-only detector with every built-in
// category enabled
func Default() (*Detector, error) {
	defaultOnce.Do(func() {
		defaultDetector, defaultErr = New(config.PrivacyConfig{Enabled: true}, nil)
	})
	return defaultDetector, defaultErr
}

// Detect reports whether text contains PII or a secret, using Default.
// It panics if the built-in rules fail to compile.
func Detect(text string) bool {
	return mustDefault().Detect(text)
}

// Mask masks text using Default
func Mask(text string) string {
	return mustDefault().Mask(text)
}

func mustDefault() *Detector {
	d, err := Default()
	if err != nil {
		panic(err)
	}
	return d
}
