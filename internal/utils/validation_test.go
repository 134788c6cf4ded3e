package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/models"
)

func TestValidateStructUsesJSONNames(t *testing.T) {
	v := NewValidator()

	err := ValidateStruct(v, models.ReportDraftInput{Title: "", ReportType: "tax"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "title", e.Field)
	assert.Equal(t, map[string]string{"title": "required", "report_type": "oneof"}, e.Details)
}

func TestValidateStructValid(t *testing.T) {
	err := ValidateStruct(NewValidator(), models.ReportDraftInput{
		Title:      "VAT Q3",
		ReportType: models.ReportTypeCompliance,
	})
	assert.NoError(t, err)
}
