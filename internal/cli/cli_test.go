package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raaihank/prompt-shield/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDetect(t *testing.T) {
	out, err := run(t, "", "detect", "email", "bob@example.com", "please")
	require.ErrorIs(t, err, ErrDetected)
	assert.Equal(t, "detected: email_address (default)\n", out)
	assert.NotContains(t, out, "bob@example.com")

	out, err = run(t, "", "detect", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "clean\n", out)
}

func TestDetectFromStdinJSON(t *testing.T) {
	out, err := run(t, "my ssn is 123-45-6789\n", "detect", "--json")
	require.ErrorIs(t, err, ErrDetected)

	var got detectOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Detected)
	assert.Equal(t, privacy.CategorySSN, got.Category)
}

func TestMask(t *testing.T) {
	out, err := run(t, "", "mask", "email bob@example.com please")
	require.NoError(t, err)
	assert.Equal(t, "email XXXX please\n", out)

	out, err = run(t, "email bob@example.com please", "mask", "-j")
	require.NoError(t, err)

	var res privacy.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "email XXXX please", res.Text)
	assert.Equal(t, []privacy.Finding{{Category: privacy.CategoryEmail, Count: 1}}, res.Findings)
}

func TestDetectorsFlag(t *testing.T) {
	_, err := run(t, "", "detect", "--detectors", "phone_number", "email bob@example.com please")
	require.NoError(t, err, "email detection is disabled")

	_, err = run(t, "", "detect", "--detectors", "shoe_size", "hello")
	require.ErrorContains(t, err, "unknown detector")
}

func TestRules(t *testing.T) {
	out, err := run(t, "", "rules")
	require.NoError(t, err)
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "credit_card_number")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 21)

	out, err = run(t, "", "rules", "--json", "--detectors", "email_address,api_key")
	require.NoError(t, err)

	var rules []ruleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rules))
	require.Len(t, rules, 2)
	assert.Equal(t, privacy.CategoryEmail, rules[0].Category)
	assert.True(t, rules[1].Heuristic)
}

func TestRulesExportRoundTrip(t *testing.T) {
	out, err := run(t, "", "rules", "--export")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	rules, err := privacy.LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rules, len(privacy.DefaultRules()))

	out, err = run(t, "", "mask", "--rules", path, "email bob@example.com please")
	require.NoError(t, err)
	assert.Equal(t, "email XXXX please\n", out)
}

func TestTrace(t *testing.T) {
	out, err := run(t, "", "trace", "email bob@example.com please")
	require.NoError(t, err)
	assert.Contains(t, out, "email_address/default")
	assert.Equal(t, 1, strings.Count(out, "\n"), "only stages that replaced something are shown")
}
