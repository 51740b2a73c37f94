package privacy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryOrder(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, []Category{
		CategoryBankAccount,
		CategoryBankRouting,
		CategoryCreditCard,
		CategoryMoney,
		CategorySSN,
		CategoryEIN,
		CategoryPassport,
		CategoryEmail,
		CategoryPhone,
		CategoryDateOfBirth,
		CategoryHomeAddress,
		CategoryRace,
		CategoryEthnicity,
		CategoryPassword,
		CategoryAccessKey,
		CategorySecretKey,
		CategoryAPIKey,
		CategoryAWSAccessKey,
		CategoryAWSSecretKey,
		CategoryGenericCredentials,
	}, reg.Categories())

	again, err := DefaultRegistry()
	require.NoError(t, err)
	assert.Same(t, reg, again, "default registry is compiled once")
}

func TestCreditCardIssuersPrecedeGenericFallback(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	var names []string
	for _, p := range reg.Patterns(CategoryCreditCard) {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"visa", "mastercard", "amex", "discover", "diners_club", "jcb", "maestro", "generic"}, names)
	assert.Nil(t, reg.Patterns("unknown"))
}

func TestHeuristicCategories(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	var gated []Category
	for _, rule := range reg.Rules() {
		if rule.Heuristic() {
			gated = append(gated, rule.Category())
		}
	}
	assert.ElementsMatch(t, []Category{
		CategoryPassword, CategoryAccessKey, CategorySecretKey, CategoryAPIKey, CategoryGenericCredentials,
	}, gated)
}

func TestNewRegistryErrors(t *testing.T) {
	valid := PatternSpec{Name: "digits", Expr: `\d+`}

	tests := []struct {
		name  string
		rules []DetectionRule
		want  string
	}{
		{"empty", nil, "at least one rule"},
		{"missing category", []DetectionRule{{Patterns: []PatternSpec{valid}}}, "category is required"},
		{"no patterns", []DetectionRule{{Category: "x"}}, "at least one pattern"},
		{"empty expression", []DetectionRule{{Category: "x", Patterns: []PatternSpec{{Name: "e"}}}}, "is empty"},
		{"duplicate", []DetectionRule{
			{Category: "x", Patterns: []PatternSpec{valid}},
			{Category: "x", Patterns: []PatternSpec{valid}},
		}, "duplicate category"},
		{"bad pattern", []DetectionRule{{Category: "broken", Patterns: []PatternSpec{{Name: "open", Expr: `(unclosed`}}}}, "rule broken: invalid pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(tt.rules)
			require.Error(t, err)
			assert.Nil(t, reg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCaseSensitivity(t *testing.T) {
	reg, err := NewRegistry([]DetectionRule{
		{Category: "loose", Patterns: []PatternSpec{{Name: "token", Expr: `token`}}},
		{Category: "strict", Patterns: []PatternSpec{{Name: "token", Expr: `TOKEN`}}, CaseSensitive: true},
	})
	require.NoError(t, err)

	loose := reg.Patterns("loose")[0]
	strict := reg.Patterns("strict")[0]
	assert.True(t, loose.re.MatchString("TOKEN"))
	assert.False(t, strict.re.MatchString("token"))
	assert.True(t, strict.re.MatchString("TOKEN"))
}

func TestRulePatternsReturnsCopy(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	rule, ok := reg.Rule(CategoryPhone)
	require.True(t, ok)

	patterns := rule.Patterns()
	patterns[0] = nil
	assert.NotNil(t, rule.Patterns()[0])
}

func TestLoadRules(t *testing.T) {
	body, err := MarshalRules([]DetectionRule{
		{
			Category:    "employee_id",
			Description: "Internal employee id",
			Patterns:    []PatternSpec{{Name: "default", Expr: `\bEMP-\d{6}\b`}},
		},
		{
			Category:  "password",
			Patterns:  []PatternSpec{{Name: "default", Expr: `(password)\s*[:=]\s*([^\s]+)`}},
			Heuristic: true,
		},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, Category("employee_id"), rules[0].Category)
	assert.True(t, rules[1].Heuristic)

	reg, err := NewRegistry(rules)
	require.NoError(t, err)
	assert.Equal(t, []Category{"employee_id", "password"}, reg.Categories())
}

func TestLoadRulesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRules(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rules: []\n"), 0o600))
	_, err = LoadRules(empty)
	require.ErrorContains(t, err, "declares no rules")

	garbage := filepath.Join(dir, "garbage.yaml")
	require.NoError(t, os.WriteFile(garbage, []byte("rules: [\n"), 0o600))
	_, err = LoadRules(garbage)
	require.ErrorContains(t, err, "failed to parse")
}
