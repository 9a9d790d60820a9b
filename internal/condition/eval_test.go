package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wfcore/engine/internal/domain"
)

func TestEvaluate_EmptyConditionIsTrue(t *testing.T) {
	assert.True(t, Evaluate("", domain.Vars{}))
	assert.True(t, Evaluate(" ", domain.Vars{}))
}

func TestEvaluate_NumericComparison(t *testing.T) {
	vars := domain.Vars{"score": float64(85)}
	assert.True(t, Evaluate("score >= 80", vars))
	assert.False(t, Evaluate("score < 80", vars))
	assert.True(t, Evaluate("score == 85", vars))
}

func TestEvaluate_StringComparison(t *testing.T) {
	vars := domain.Vars{"status": "approved"}
	assert.True(t, Evaluate("status == 'approved'", vars))
	assert.True(t, Evaluate(`status == "approved"`, vars))
	assert.False(t, Evaluate("status == 'rejected'", vars))
}

func TestEvaluate_BooleanLiteral(t *testing.T) {
	vars := domain.Vars{"approved": true}
	assert.True(t, Evaluate("approved == true", vars))
	assert.False(t, Evaluate("approved == false", vars))
}

func TestEvaluate_BareIdentifierTruthiness(t *testing.T) {
	assert.True(t, Evaluate("approved", domain.Vars{"approved": true}))
	assert.False(t, Evaluate("approved", domain.Vars{"approved": false}))
	assert.False(t, Evaluate("missing", domain.Vars{}))
	assert.False(t, Evaluate("zero", domain.Vars{"zero": float64(0)}))
	assert.False(t, Evaluate("blank", domain.Vars{"blank": ""}))
	assert.False(t, Evaluate("literalFalseString", domain.Vars{"literalFalseString": "false"}))
}

func TestEvaluate_NullLiteral(t *testing.T) {
	assert.True(t, Evaluate("missing == null", domain.Vars{}))
}

func TestEvaluate_MalformedConditionReturnsFalse(t *testing.T) {
	assert.False(t, Evaluate("input.score >= && 80", domain.Vars{}))
}

func TestEvaluate_DottedPath(t *testing.T) {
	vars := domain.Vars{"customer": map[string]any{"tier": "gold"}}
	assert.True(t, Evaluate("customer.tier == 'gold'", vars))
}

func TestEvaluate_NumberVsStringCoercion(t *testing.T) {
	// number vs number -> numeric; anything else -> string compare.
	vars := domain.Vars{"code": "7"}
	assert.True(t, Evaluate("code == '7'", vars))
}
