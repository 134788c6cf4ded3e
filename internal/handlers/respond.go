package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/regdesk/backend/internal/apperrors"
	"github.com/regdesk/backend/internal/middleware"
	"github.com/regdesk/backend/internal/models"
)

// StatusFor maps an error kind to its HTTP status
func StatusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindInvalidTransition, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindPartialFailure:
		return http.StatusMultiStatus
	case apperrors.KindUpstreamFailure:
		if e, ok := apperrors.As(err); ok && e.Reason == apperrors.ReasonTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes the error body {"error", "code", "details"}
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	status := StatusFor(err)
	body := gin.H{"error": err.Error(), "code": string(apperrors.KindOf(err))}

	var partial *apperrors.PartialFailure
	if errors.As(err, &partial) {
		body["details"] = partial
	} else if e, ok := apperrors.As(err); ok {
		body["error"] = e.Message
		details := gin.H{}
		if e.Reason != "" {
			details["reason"] = e.Reason
		}
		if e.Field != "" {
			details["field"] = e.Field
		}
		if e.Details != nil {
			details["details"] = e.Details
		}
		if len(details) > 0 {
			body["details"] = details
		}
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("unhandled error")
		body = gin.H{"error": "internal server error", "code": "internal_error"}
	}
	c.JSON(status, body)
}

// currentActor returns the authenticated caller or writes 401
func currentActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
		return models.Actor{}, false
	}
	return actor, true
}

// uuidParam parses a path parameter or writes 400
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid " + name,
			"code":    string(apperrors.KindValidation),
			"details": gin.H{"field": name},
		})
		return uuid.Nil, false
	}
	return id, true
}

// badRequest reports a malformed body
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(apperrors.KindValidation)})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return fallback
}

func optionalUUID(value string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
