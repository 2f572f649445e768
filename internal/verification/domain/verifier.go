package domain

import "math"

// Decision is the triage outcome of one evaluation.
type Decision string

const (
	DecisionAutoVerified Decision = "auto_verified"
	DecisionNeedsReview  Decision = "needs_review"
	DecisionAutoRejected Decision = "auto_rejected"
)

// Status maps a triage decision to the submission status it resolves to.
func (d Decision) Status() VerificationStatus {
	switch d {
	case DecisionAutoVerified:
		return VerificationStatusAutoVerified
	case DecisionAutoRejected:
		return VerificationStatusAutoRejected
	}
	return VerificationStatusNeedsReview
}

// Expectations carries the configured values one receipt is scored against.
type Expectations struct {
	// AccountNumber is the collector's expected wallet number, in any
	// printed form; it is normalized before comparison.
	AccountNumber string
	// ExpectedAmount is what the invoice says the customer owes.
	ExpectedAmount float64
	// MinimumAmount is the smallest payment accepted outright.
	MinimumAmount float64
	// AmountTolerance is the absolute deviation from ExpectedAmount still
	// accepted when the amount is below MinimumAmount.
	AmountTolerance float64
}

// Check is one scored heuristic. Critical checks gate validity; the rest
// only contribute to confidence.
type Check struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Passed   bool   `json:"passed"`
}

// Evaluation is the complete result of scoring one receipt text.
type Evaluation struct {
	Fields     ExtractedFields `json:"fields"`
	Checks     []Check         `json:"checks"`
	Confidence int             `json:"confidence"`
	IsValid    bool            `json:"is_valid"`
	Decision   Decision        `json:"decision"`
}

const (
	autoVerifyConfidence  = 90
	needsReviewConfidence = 70
)

// Evaluate scores extracted receipt text against the expected payment. It is
// a deterministic function of its inputs, performs no I/O and is safe to call
// concurrently.
func Evaluate(text string, exp Expectations) Evaluation {
	fields := ParseFields(text)

	expectedAccount := NormalizeAccount(exp.AccountNumber)
	accountOK := false
	for _, account := range fields.AccountNumbers {
		if expectedAccount != "" && account == expectedAccount {
			accountOK = true
			break
		}
	}

	amountOK := false
	for _, amount := range fields.Amounts {
		if amount >= exp.MinimumAmount {
			amountOK = true
			break
		}
		if exp.ExpectedAmount > 0 && math.Abs(amount-exp.ExpectedAmount) <= exp.AmountTolerance {
			amountOK = true
			break
		}
	}

	referenceOK := len(fields.ReferenceNumber) >= 9 && len(fields.ReferenceNumber) <= 13
	dateOK := fields.DateTime != ""

	checks := []Check{
		{Name: "account_match", Critical: true, Passed: accountOK},
		{Name: "amount_ok", Critical: true, Passed: amountOK},
		{Name: "reference_plausible", Critical: false, Passed: referenceOK},
		{Name: "date_present", Critical: false, Passed: dateOK},
	}

	passed := 0
	isValid := true
	for _, check := range checks {
		if check.Passed {
			passed++
		} else if check.Critical {
			isValid = false
		}
	}
	confidence := passed * 100 / len(checks)

	// an invalid submission can never be promoted by its confidence score
	decision := DecisionAutoRejected
	switch {
	case isValid && confidence >= autoVerifyConfidence:
		decision = DecisionAutoVerified
	case confidence >= needsReviewConfidence:
		decision = DecisionNeedsReview
	}

	return Evaluation{
		Fields:     fields,
		Checks:     checks,
		Confidence: confidence,
		IsValid:    isValid,
		Decision:   decision,
	}
}
