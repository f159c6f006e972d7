package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    string   `json:"id" validate:"required"`
	Score *float64 `json:"score,omitempty" validate:"required"`
}

func TestStructUsesJSONNames(t *testing.T) {
	err := Struct(record{})
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := []string{verrs[0].Field(), verrs[1].Field()}
	assert.ElementsMatch(t, []string{"id", "score"}, fields)
}

func TestStructZeroPointerValueIsPresent(t *testing.T) {
	zero := 0.0
	assert.NoError(t, Struct(record{ID: "x", Score: &zero}))
}
