package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdesk/backend/internal/models"
)

func TestSignAndValidateToken(t *testing.T) {
	actor := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin, CompanyID: uuid.New()}

	token, err := SignToken("secret", actor, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor())

	_, err = ValidateToken("other-secret", token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsBadClaims(t *testing.T) {
	expired, err := SignToken("secret", models.Actor{UserID: uuid.New(), Role: models.RoleAdmin, CompanyID: uuid.New()}, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken("secret", expired)
	assert.Error(t, err)

	noCompany, err := SignToken("secret", models.Actor{UserID: uuid.New(), Role: models.RoleAccountant}, time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken("secret", noCompany)
	assert.Error(t, err)

	system, err := SignToken("secret", models.Actor{UserID: uuid.New(), Role: models.RoleSystem, CompanyID: uuid.New()}, time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken("secret", system)
	assert.Error(t, err)
}
