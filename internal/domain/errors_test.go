package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateError(t *testing.T) {
	cause := errors.New("undefined: Forward")
	err := fmt.Errorf("score: %w", NewCandidateInvalid("fw_1", cause))

	assert.ErrorIs(t, err, ErrCandidateInvalid)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrEvaluationEmpty)
	assert.True(t, IsCandidateFailure(err))
	assert.Equal(t, "score: candidate invalid: fw_1: undefined: Forward", err.Error())

	var ce *CandidateError
	if assert.ErrorAs(t, err, &ce) {
		assert.Equal(t, "fw_1", ce.FrameworkID)
	}
}

func TestEvaluationEmpty(t *testing.T) {
	err := NewEvaluationEmpty("fw_2", nil)
	assert.ErrorIs(t, err, ErrEvaluationEmpty)
	assert.True(t, IsCandidateFailure(err))
	assert.Equal(t, "evaluation empty: fw_2", err.Error())
}

func TestIsCandidateFailure_OtherKinds(t *testing.T) {
	for _, err := range []error{ErrRateLimited, ErrSchemaViolation, ErrProviderUnavailable, ErrTimeout, ErrPersistenceConflict, nil} {
		assert.False(t, IsCandidateFailure(err))
	}
}
