package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/gin-gonic/gin"
)

const errInternalServer = "Internal server error"

// sentinelKinds maps the domain package's bare sentinel errors to a stable
// apperr.Kind. Service methods below apperr (collections, registry,
// scheduler, settings) still return their own domain.ErrXxx values the way
// the teacher's usecase layer does; this is the one place that classifies
// them, generalizing the teacher's per-handler errors.Is switch (errJobNotFound,
// errDuplicateJob, ...) across this spec's much larger endpoint surface.
var sentinelKinds = map[error]apperr.Kind{
	domain.ErrCollectionNotFound:    apperr.KindNotFound,
	domain.ErrCollectionNameTaken:   apperr.KindConflict,
	domain.ErrInvalidSchema:        apperr.KindValidation,
	domain.ErrRecordNotFound:        apperr.KindNotFound,
	domain.ErrUniqueViolation:       apperr.KindConflict,
	domain.ErrReferenceViolation:    apperr.KindValidation,
	domain.ErrConcurrencyConflict:   apperr.KindConflict,
	domain.ErrUnknownField:         apperr.KindValidation,
	domain.ErrRequiredFieldMissing: apperr.KindValidation,
	domain.ErrDuplicateFieldName:   apperr.KindValidation,
	domain.ErrBackfillHasDuplicates: apperr.KindConflict,

	domain.ErrFunctionNotFound:  apperr.KindNotFound,
	domain.ErrFunctionNameTaken: apperr.KindConflict,
	domain.ErrVersionNotFound:   apperr.KindNotFound,
	domain.ErrBadSource:         apperr.KindBadSource,
	domain.ErrCallNotFound:      apperr.KindNotFound,
	domain.ErrNoActiveVersion:   apperr.KindNotFound,

	domain.ErrScheduleNotFound:     apperr.KindNotFound,
	domain.ErrInvalidScheduleSpec:  apperr.KindValidation,
	domain.ErrScheduleNameConflict: apperr.KindConflict,

	domain.ErrSettingNotFound:     apperr.KindNotFound,
	domain.ErrSettingTypeMismatch: apperr.KindValidation,

	domain.ErrUserNotFound:       apperr.KindNotFound,
	domain.ErrUserInactive:       apperr.KindForbidden,
	domain.ErrEmailTaken:         apperr.KindConflict,
	domain.ErrTokenInvalid:       apperr.KindUnauthorized,
	domain.ErrUnauthorized:       apperr.KindUnauthorized,
	domain.ErrInvalidCredentials: apperr.KindUnauthorized,
}

// writeError classifies err and writes the propagation-policy response
// (spec §7): a stable {"error","code"[,"fields"]} body for recoverable
// kinds, a logged, generic InternalError otherwise.
func writeError(c *gin.Context, logger *slog.Logger, logMsg string, err error) {
	if e, ok := apperr.As(err); ok {
		body := gin.H{"error": e.Message, "code": string(e.Kind)}
		if len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
		c.JSON(e.Status(), body)
		return
	}

	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperr.FieldMessage, len(verrs))
		for i, v := range verrs {
			fields[i] = apperr.FieldMessage{Field: v.Field, Message: v.Message}
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "code": string(apperr.KindValidation), "fields": fields})
		return
	}

	var uerr *domain.UniqueViolationError
	if errors.As(err, &uerr) {
		fields := []apperr.FieldMessage{{Field: uerr.Field, Message: "value already exists"}}
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrUniqueViolation.Error(), "code": string(apperr.KindConflict), "fields": fields})
		return
	}

	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			e := apperr.New(kind, sentinel.Error(), err)
			c.JSON(e.Status(), gin.H{"error": e.Message, "code": string(e.Kind)})
			return
		}
	}

	logger.Error(logMsg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer, "code": string(apperr.KindInternal)})
}
