package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExpectations = Expectations{
	AccountNumber:   "09171234567",
	ExpectedAmount:  199,
	MinimumAmount:   199,
	AmountTolerance: 1.0,
}

const goodReceipt = `GCash
Sent to JUAN DELA CRUZ
0917 123 4567
Amount ₱199.00
Ref No. 0012345678901
Jan 15, 2025 4:23 PM`

func TestEvaluate_CompleteReceiptAutoVerifies(t *testing.T) {
	evaluation := Evaluate(goodReceipt, testExpectations)

	assert.True(t, evaluation.IsValid)
	assert.Equal(t, 100, evaluation.Confidence)
	assert.Equal(t, DecisionAutoVerified, evaluation.Decision)
	assert.Equal(t, "0012345678901", evaluation.Fields.ReferenceNumber)
	assert.Contains(t, evaluation.Fields.AccountNumbers, "09171234567")
}

func TestEvaluate_WrongAccountNeverAutoVerifies(t *testing.T) {
	receipt := `GCash
Sent to JUAN DELA CRUZ
0918 999 8888
Amount ₱199.00
Ref No. 0012345678901
Jan 15, 2025 4:23 PM`

	evaluation := Evaluate(receipt, testExpectations)

	assert.False(t, evaluation.IsValid)
	assert.Equal(t, 75, evaluation.Confidence)
	assert.NotEqual(t, DecisionAutoVerified, evaluation.Decision)
	assert.Equal(t, DecisionNeedsReview, evaluation.Decision)
}

func TestEvaluate_ValidButIncompleteNeedsReview(t *testing.T) {
	// correct account and amount, no reference number
	receipt := `Sent to 09171234567
Amount PHP 199.00
Jan 15, 2025`

	evaluation := Evaluate(receipt, testExpectations)

	assert.True(t, evaluation.IsValid)
	assert.Equal(t, 75, evaluation.Confidence)
	assert.Equal(t, DecisionNeedsReview, evaluation.Decision)
}

func TestEvaluate_ValidCriticalsLowConfidenceAutoRejects(t *testing.T) {
	// criticals pass but neither reference nor date is present
	receipt := `09171234567 ₱199.00`

	evaluation := Evaluate(receipt, testExpectations)

	assert.True(t, evaluation.IsValid)
	assert.Equal(t, 50, evaluation.Confidence)
	assert.Equal(t, DecisionAutoRejected, evaluation.Decision)
}

func TestEvaluate_GarbageAutoRejects(t *testing.T) {
	evaluation := Evaluate("totally unrelated screenshot text", testExpectations)

	assert.False(t, evaluation.IsValid)
	assert.Equal(t, 0, evaluation.Confidence)
	assert.Equal(t, DecisionAutoRejected, evaluation.Decision)
}

func TestEvaluate_AmountWithinTolerance(t *testing.T) {
	receipt := `Sent to 09171234567
Amount ₱198.50
Ref No. 0012345678901
Jan 15, 2025`

	evaluation := Evaluate(receipt, testExpectations)

	assert.True(t, evaluation.IsValid, "198.50 is within 1.0 of 199")
	assert.Equal(t, DecisionAutoVerified, evaluation.Decision)
}

func TestEvaluate_AmountAboveMinimumPasses(t *testing.T) {
	receipt := `Sent to 09171234567
Amount ₱500.00
Ref No. 0012345678901
Jan 15, 2025`

	evaluation := Evaluate(receipt, testExpectations)

	assert.True(t, evaluation.IsValid)
	assert.Equal(t, DecisionAutoVerified, evaluation.Decision)
}

func TestEvaluate_AmountTooLowFailsCritical(t *testing.T) {
	receipt := `Sent to 09171234567
Amount ₱50.00
Ref No. 0012345678901
Jan 15, 2025`

	evaluation := Evaluate(receipt, testExpectations)

	assert.False(t, evaluation.IsValid)
	assert.NotEqual(t, DecisionAutoVerified, evaluation.Decision)
}

func TestEvaluate_Deterministic(t *testing.T) {
	first := Evaluate(goodReceipt, testExpectations)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(goodReceipt, testExpectations))
	}
}

func TestNormalizeAccount_EquivalentForms(t *testing.T) {
	forms := []string{
		"09171234567",
		"0917 123 4567",
		"0917-123-4567",
		"+639171234567",
		"+63 917 123 4567",
		"639171234567",
	}
	for _, form := range forms {
		assert.Equal(t, "09171234567", NormalizeAccount(form), "form %q", form)
	}
}

func TestNormalizeAccount_RejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "0917123456", "091712345678", "12345", "nine one seven"} {
		assert.Empty(t, NormalizeAccount(raw), "raw %q", raw)
	}
}

func TestEvaluate_AccountFormatsAreEquivalent(t *testing.T) {
	base := Evaluate(goodReceipt, testExpectations)
	require.Equal(t, DecisionAutoVerified, base.Decision)

	variants := []string{
		"Sent to +63 917 123 4567\nAmount ₱199.00\nRef No. 0012345678901\nJan 15, 2025",
		"Sent to 0917-123-4567\nAmount PHP 199.00\nRef No. 0012345678901\nJan 15, 2025",
		"Sent to 639171234567\nAmount ₱199.00\nRef No. 0012345678901\nJan 15, 2025",
	}
	for _, variant := range variants {
		evaluation := Evaluate(variant, testExpectations)
		assert.Equal(t, DecisionAutoVerified, evaluation.Decision, "variant %q", variant)
	}
}

func TestParseFields_MultipleAmounts(t *testing.T) {
	text := `Amount ₱199.00
Total Amount Sent ₱204.00
Fee ₱5.00`

	fields := ParseFields(text)
	assert.Contains(t, fields.Amounts, 199.0)
	assert.Contains(t, fields.Amounts, 204.0)
	assert.Contains(t, fields.Amounts, 5.0)
}

func TestParseFields_BareThirteenDigitReference(t *testing.T) {
	fields := ParseFields("GCash 1234567890123 Jan 15, 2025")
	assert.Equal(t, "1234567890123", fields.ReferenceNumber)
}

func TestDecisionStatusMapping(t *testing.T) {
	assert.Equal(t, VerificationStatusAutoVerified, DecisionAutoVerified.Status())
	assert.Equal(t, VerificationStatusNeedsReview, DecisionNeedsReview.Status())
	assert.Equal(t, VerificationStatusAutoRejected, DecisionAutoRejected.Status())
}

func TestVerificationStatusTerminality(t *testing.T) {
	assert.False(t, VerificationStatusPending.IsTerminal())
	assert.False(t, VerificationStatusNeedsReview.IsTerminal())
	assert.True(t, VerificationStatusAutoVerified.IsTerminal())
	assert.True(t, VerificationStatusVerified.IsTerminal())
	assert.True(t, VerificationStatusAutoRejected.IsTerminal())
	assert.True(t, VerificationStatusRejected.IsTerminal())
}
