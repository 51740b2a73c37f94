package privacy

// Category identifies a family of structural patterns in the registry
type Category string

// Built-in categories, listed in evaluation order
const (
	CategoryBankAccount        Category = "bank_account_number"
	CategoryBankRouting        Category = "bank_routing_number"
	CategoryCreditCard         Category = "credit_card_number"
	CategoryMoney              Category = "money"
	CategorySSN                Category = "ssn_tin"
	CategoryEIN                Category = "ein"
	CategoryPassport           Category = "passport_number"
	CategoryEmail              Category = "email_address"
	CategoryPhone              Category = "phone_number"
	CategoryDateOfBirth        Category = "date_of_birth"
	CategoryHomeAddress        Category = "home_address"
	CategoryRace               Category = "race"
	CategoryEthnicity          Category = "ethnicity"
	CategoryPassword           Category = "password"
	CategoryAccessKey          Category = "access_key"
	CategorySecretKey          Category = "secret_key"
	CategoryAPIKey             Category = "api_key"
	CategoryAWSAccessKey       Category = "aws_access_key"
	CategoryAWSSecretKey       Category = "aws_secret_key"
	CategoryGenericCredentials Category = "generic_credentials"
)

// MaskToken replaces every confirmed value in masked output
const MaskToken = "XXXX"

// Match is a single structural match of one registry pattern.
//
// Value is the second capture group when the pattern declares a label and a
// value, otherwise the whole match. Offsets are byte offsets into the text the
// pattern was run against.
type Match struct {
	Category   Category `json:"category"`
	Pattern    string   `json:"pattern"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Value      string   `json:"-"`
	ValueStart int      `json:"value_start"`
	ValueEnd   int      `json:"value_end"`
}

// Finding counts the confirmed replacements made for one category
type Finding struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Result contains the outcome of redacting a piece of text.
// EntityDetected is set when only the entity recogniser flagged the text;
// such text is returned unchanged.
type Result struct {
	Text           string    `json:"text"`
	Detected       bool      `json:"detected"`
	EntityDetected bool      `json:"entity_detected"`
	Findings       []Finding `json:"findings"`
}

// Redactions returns the total number of replaced values
func (r Result) Redactions() int {
	total := 0
	for _, f := range r.Findings {
		total += f.Count
	}
	return total
}
