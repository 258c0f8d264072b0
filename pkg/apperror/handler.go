package apperror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ReportFunc forwards server-side failures to an error tracker.
type ReportFunc func(c echo.Context, err error)

// HTTPErrorHandler returns an Echo error handler that renders every error as
//
//	{"error": {"code": "...", "message": "...", "details": {...}}}
//
// 5xx errors are logged and handed to each reporter.
func HTTPErrorHandler(log *slog.Logger, reporters ...ReportFunc) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		errorObj := map[string]any{
			"code":    "internal_error",
			"message": "An internal error occurred",
		}

		var he *echo.HTTPError
		if errors.As(err, &he) && !isAppError(err) {
			code = he.Code

			// structured error map, e.g. produced by Error.ToEchoError
			if msgMap, ok := he.Message.(map[string]any); ok {
				if errInner, ok := msgMap["error"].(map[string]any); ok {
					for k, v := range errInner {
						errorObj[k] = v
					}
				}
			} else if msg, ok := he.Message.(string); ok {
				errorObj["message"] = msg
				switch code {
				case http.StatusNotFound:
					errorObj["code"] = "not_found"
				case http.StatusBadRequest:
					errorObj["code"] = "bad_request"
				case http.StatusMethodNotAllowed:
					errorObj["code"] = "method_not_allowed"
				case http.StatusUnprocessableEntity:
					errorObj["code"] = "validation_error"
				case http.StatusServiceUnavailable:
					errorObj["code"] = "service_unavailable"
				}
			}
		} else {
			appErr := FromError(err)
			code = appErr.HTTPStatus
			errorObj = appErr.Body()
		}

		if code >= 500 {
			log.Error("request error",
				slog.Int("status", code),
				slog.String("path", c.Request().URL.Path),
				slog.String("error", err.Error()),
			)
			for _, report := range reporters {
				if report != nil {
					report(c, err)
				}
			}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
		} else {
			_ = c.JSON(code, map[string]any{"error": errorObj})
		}
	}
}

func isAppError(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr)
}
