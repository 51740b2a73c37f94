package privacy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DetectionRule describes one registry category: an ordered list of
// independent patterns and whether the heuristic filter gates its matches.
type DetectionRule struct {
	Category      Category      `yaml:"category"`
	Description   string        `yaml:"description,omitempty"`
	Patterns      []PatternSpec `yaml:"patterns"`
	Heuristic     bool          `yaml:"heuristic,omitempty"`
	CaseSensitive bool          `yaml:"case_sensitive,omitempty"`
}

// PatternSpec is an uncompiled pattern. Name is kept on every Match so
// consumers can tell which sub-pattern fired (e.g. "visa" vs "generic").
type PatternSpec struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

type ruleFile struct {
	Rules []DetectionRule `yaml:"rules"`
}

// LoadRules reads an ordered rule list from a YAML file
func LoadRules(path string) ([]DetectionRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s declares no rules", path)
	}

	return file.Rules, nil
}

// MarshalRules renders rules in the format LoadRules accepts
func MarshalRules(rules []DetectionRule) ([]byte, error) {
	return yaml.Marshal(ruleFile{Rules: rules})
}

// DefaultRules returns the built-in rule table in evaluation order.
// All built-in patterns are matched case-insensitively.
func DefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Category:    CategoryBankAccount,
			Description: "Bank account number",
			Patterns:    single(`\b\d{10,12}\b`),
		},
		{
			Category:    CategoryBankRouting,
			Description: "Bank routing number",
			Patterns:    single(`\b\d{9}\b`),
		},
		{
			// Issuer prefixes must run before the generic fallback.
			Category:    CategoryCreditCard,
			Description: "Payment card number",
			Patterns: []PatternSpec{
				{Name: "visa", Expr: `\b(?:4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4})\b`},
				{Name: "mastercard", Expr: `\b(?:5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4})\b`},
				{Name: "amex", Expr: `\b(?:3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5})\b`},
				{Name: "discover", Expr: `\b(?:6(?:011|5\d{2})[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4})\b`},
				{Name: "diners_club", Expr: `\b(?:3(?:0[0-5]|[68]\d)\d{11,14})\b`},
				{Name: "jcb", Expr: `\b(?:(?:2131|1800|35\d{3})[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4})\b`},
				{Name: "maestro", Expr: `\b(?:(?:5[0678]\d\d|6304|6390|67\d\d)\d{8,15})\b`},
				{Name: "generic", Expr: `\b(?:\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4})\b`},
			},
		},
		{
			Category:    CategoryMoney,
			Description: "Monetary amount",
			Patterns: []PatternSpec{
				{Name: "braced", Expr: `\{\$?\d+(?:\.\d{2})?\$?\}`},
				{Name: "currency", Expr: `(?:\$\s?\d+(?:,\d{3})*(?:\.\d{2})?|\d+(?:,\d{3})*(?:\.\d{2})?\s?\$)`},
			},
		},
		{
			Category:    CategorySSN,
			Description: "Social security or taxpayer identification number",
			Patterns:    single(`\b\d{3}-\d{2}-\d{4}\b`),
		},
		{
			Category:    CategoryEIN,
			Description: "Employer identification number",
			Patterns:    single(`\b\d{2}-\d{7}\b`),
		},
		{
			Category:    CategoryPassport,
			Description: "Passport number",
			Patterns:    single(`\b[A-Z]{1}\d{7}\b`),
		},
		{
			Category:    CategoryEmail,
			Description: "Email address",
			Patterns:    single(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		},
		{
			Category:    CategoryPhone,
			Description: "Phone number",
			Patterns: []PatternSpec{
				{Name: "nanp", Expr: `\+?\b(?:1[-.\s]?)?(?:\(?[2-9]\d{2}\)?[-.\s]?)?[2-9]\d{2}[-.\s]?\d{4}\b`},
				{Name: "ten_digit", Expr: `\b\d{10}\b`},
				{Name: "parenthesized", Expr: `\b\(\d{3}\)\s?\d{3}[-.\s]?\d{4}\b`},
				{Name: "separated", Expr: `\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`},
			},
		},
		{
			Category:    CategoryDateOfBirth,
			Description: "Date of birth",
			Patterns:    single(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`),
		},
		{
			Category:    CategoryHomeAddress,
			Description: "Postal address",
			Patterns:    single(`\b\d{1,9},\s[\w\s]+,\s[\w\s]+,\s[A-Z]{2}\s\d{5}(?:-\d{4})?\b`),
		},
		{
			Category:    CategoryRace,
			Description: "Race",
			Patterns:    single(`\b(?:White|Black|Asian|Native American|Pacific Islander|Multiracial|Biracial)\b`),
		},
		{
			Category:    CategoryEthnicity,
			Description: "Ethnicity",
			Patterns:    single(`\b(?:Hispanic|Latino|Latinx|African American|Caucasian|Arab|Jewish|Slavic|Celtic|Germanic|Scandinavian|Mediterranean|Ashkenazi|Sephardic)\b`),
		},
		{
			Category:    CategoryPassword,
			Description: "Labelled password",
			Patterns:    single(`(password)\s*[:=]\s*['"]?([^\s'";]+)['"]?`),
			Heuristic:   true,
		},
		{
			Category:    CategoryAccessKey,
			Description: "Labelled access key",
			Patterns:    single(`(access[-_\s]*key)\s*[:=]\s*['"]?([A-Z0-9]{16,})['"]?`),
			Heuristic:   true,
		},
		{
			Category:    CategorySecretKey,
			Description: "Labelled secret key",
			Patterns:    single(`(secret[-_\s]*key)\s*[:=]\s*['"]?([\w/\+=_-]{8,})['"]?`),
			Heuristic:   true,
		},
		{
			Category:    CategoryAPIKey,
			Description: "Labelled sk- API key",
			Patterns:    single(`(api[-_\s]*key)\s*[:=]\s*['"]?(sk-[A-Za-z0-9-_]{16,})['"]?`),
			Heuristic:   true,
		},
		{
			Category:    CategoryAWSAccessKey,
			Description: "AWS access key id",
			Patterns:    single(`\bAKIA[0-9A-Z]{16}\b`),
		},
		{
			Category:    CategoryAWSSecretKey,
			Description: "AWS secret access key",
			Patterns:    single(`\b[0-9a-zA-Z/+=]{40}\b`),
		},
		{
			Category:    CategoryGenericCredentials,
			Description: "Labelled username or login",
			Patterns:    single(`(user|login|username)\s*[:=]\s*['"]?([^\s'";]+)['"]?`),
			Heuristic:   true,
		},
	}
}

func single(expr string) []PatternSpec {
	return []PatternSpec{{Name: "default", Expr: expr}}
}
