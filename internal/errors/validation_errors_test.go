package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorsCollectsEveryProblem(t *testing.T) {
	v := &ValidationErrors{}
	v.Add(ErrTypeCreditValidation, "credits[0].credit_value", "MA101: credit value 12 outside 1..10")
	v.Add(ErrTypeDuplicateSubject, "credits", "PH102 assigned more than once", "PH102")
	v.Add(ErrTypeIncompleteAssignment, "credits", "2 subject(s) have no credit", "CS103", "CS104")

	require.Equal(t, 3, v.Len())
	assert.True(t, v.Has(ErrTypeDuplicateSubject))
	assert.False(t, v.Has(ErrTypeGradeLookup))

	missing, ok := v.Find(ErrTypeIncompleteAssignment)
	require.True(t, ok)
	assert.Equal(t, []string{"CS103", "CS104"}, missing.Subjects)

	assert.Equal(t,
		"validation failed: MA101: credit value 12 outside 1..10; PH102 assigned more than once; 2 subject(s) have no credit",
		v.Error())
}

func TestValidationErrorsIsMatchesSentinels(t *testing.T) {
	v := &ValidationErrors{}
	v.Add(ErrTypeIncompleteAssignment, "credits", "missing", "MA101")

	var err error = v
	assert.True(t, stderrors.Is(err, ErrIncompleteAssignment))
	assert.False(t, stderrors.Is(err, ErrDuplicateSubject))
}

func TestValidationErrorsOrNil(t *testing.T) {
	var nilSet *ValidationErrors
	assert.NoError(t, nilSet.OrNil())
	assert.NoError(t, (&ValidationErrors{}).OrNil())

	v := &ValidationErrors{}
	v.Add(ErrTypeCreditValidation, "", "bad")
	assert.Error(t, v.OrNil())
}
