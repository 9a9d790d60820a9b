package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wfcore/engine/internal/wferrors"
)

// APIError is the error envelope every Control API failure responds with.
type APIError struct {
	Code string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// respondError maps a Go error onto the Control API's error taxonomy
// and writes the matching HTTP status + APIError body.
func respondError(c *gin.Context, err error) {
	status, code := translateError(err)
	c.JSON(status, APIError{Code: code, Message: err.Error()})
}

func translateError(err error) (int, string) {
	var malformed *wferrors.DefinitionMalformed
	var invalid *wferrors.DefinitionInvalid
	var notFound *wferrors.DefinitionNotFound
	var instanceNotFound *wferrors.InstanceNotFound
	var noBranch *wferrors.NoBranchSatisfied
	var nodeFailure *wferrors.NodeExecutionFailure
	var txnFailure *wferrors.TransactionFailure
	var txnValidation *wferrors.TransactionValidation
	var compFailure *wferrors.CompensationFailure
	var eventTerminal *wferrors.EventAlreadyTerminal
	var concurrentMod *wferrors.ConcurrentModification

	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, "DEFINITION_MALFORMED"
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "DEFINITION_INVALID"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "DEFINITION_NOT_FOUND"
	case errors.As(err, &instanceNotFound):
		return http.StatusNotFound, "INSTANCE_NOT_FOUND"
	case errors.As(err, &noBranch):
		return http.StatusUnprocessableEntity, "NO_BRANCH_SATISFIED"
	case errors.As(err, &nodeFailure):
		return http.StatusUnprocessableEntity, "NODE_EXECUTION_FAILED"
	case errors.As(err, &txnFailure):
		return http.StatusUnprocessableEntity, "TRANSACTION_FAILED"
	case errors.As(err, &txnValidation):
		return http.StatusBadRequest, "TRANSACTION_VALIDATION_FAILED"
	case errors.As(err, &compFailure):
		return http.StatusInternalServerError, "COMPENSATION_FAILED"
	case errors.As(err, &eventTerminal):
		return http.StatusConflict, "EVENT_ALREADY_TERMINAL"
	case errors.As(err, &concurrentMod):
		return http.StatusConflict, "CONCURRENT_MODIFICATION"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Code: "VALIDATION_FAILED", Message: err.Error()})
		return err
	}
	return nil
}
