package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                  = 0
	CodeBadRequest          = 40000
	CodeEmailExists         = 40002
	CodeUnsupportedLanguage = 40003
	CodeUnauthorized        = 40100
	CodeInvalidCredentials  = 40101
	CodeNotFound            = 40400
	CodeSessionNotFound     = 40401
	CodeChapterNotFound     = 40402
	CodeUserNotFound        = 40403
	CodeInternalServer      = 50000
	CodeUpstreamFailed      = 50200
	CodeFeatureDisabled     = 50300
	CodeMessageEnqueue      = 50301
)

type APIResponse struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:      CodeOK,
		Message:   "ok",
		Data:      data,
		RequestID: c.GetString(RequestIDKey),
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:      code,
		Message:   message,
		RequestID: c.GetString(RequestIDKey),
	})
}

// RequestIDKey is the gin context key set by the request id middleware.
const RequestIDKey = "request_id"
