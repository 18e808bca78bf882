package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
	"github.com/yungbote/course-assistant-backend/internal/kbsync"
	apperr "github.com/yungbote/course-assistant-backend/internal/pkg/errors"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

// RespondAppError writes err with the status and code its type implies.
func RespondAppError(c *gin.Context, err error) {
	status, code := Classify(err)
	RespondError(c, status, code, err)
}

// Classify maps an error from the service layer to an HTTP status and envelope code.
func Classify(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, kbsync.ErrInvalidRecord), errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, kbsync.ErrInFlight):
		return http.StatusConflict, "in_flight"
	case errors.Is(err, apperr.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, apperr.ErrUnsupported):
		return http.StatusUnsupportedMediaType, "unsupported"
	}

	var ke *kbsync.Error
	if errors.As(err, &ke) {
		switch ke.Kind {
		case kbsync.KindFetch:
			return http.StatusServiceUnavailable, "fetch_failed"
		case kbsync.KindSave, kbsync.KindDelete:
			if store.IsCode(ke.Err, store.CodeConstraint) {
				return http.StatusConflict, "constraint"
			}
			return http.StatusBadGateway, string(ke.Kind) + "_failed"
		case kbsync.KindSubscription:
			return http.StatusServiceUnavailable, "subscription_failed"
		}
	}

	var ge *gemini.Error
	if errors.As(err, &ge) {
		switch ge.Kind {
		case gemini.KindUnsupported:
			return http.StatusUnsupportedMediaType, "unsupported"
		case gemini.KindInvalidInput:
			return http.StatusBadRequest, "invalid_argument"
		default:
			return http.StatusBadGateway, "ai_" + string(ge.Kind)
		}
	}
	return http.StatusInternalServerError, "internal"
}
