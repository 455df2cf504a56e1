package httptransport

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fro-server/internal/domain/analysis"
	"fro-server/internal/domain/capture"
	"fro-server/internal/platform/errors"
)

// APIResponse is the envelope of every /api reply.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a successful envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondError writes a failed envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// ErrorData is attached to failed envelopes produced from domain errors.
type ErrorData struct {
	Kind     string `json:"kind"`
	Error    string `json:"error"`
	Fallback bool   `json:"fallback,omitempty"`
}

// StatusFor maps a domain error to an HTTP status and user-facing message.
// fallback is set when the client should switch to file upload.
func StatusFor(err error) (status int, message string, fallback bool) {
	switch {
	case stderrors.Is(err, context.Canceled):
		return statusClientClosedRequest, "Requisição cancelada.", false
	case stderrors.Is(err, capture.ErrCameraUnavailable):
		return http.StatusConflict, "Câmera indisponível. Por favor, envie um arquivo.", true
	case stderrors.Is(err, capture.ErrNoSession):
		return http.StatusBadRequest, "Nenhuma câmera aberta.", false
	case stderrors.Is(err, capture.ErrCaptureFailed):
		return http.StatusBadRequest, "Não foi possível processar a imagem da câmera.", false
	case stderrors.Is(err, capture.ErrFileRead):
		return http.StatusUnprocessableEntity, "Falha ao ler o arquivo.", false
	case stderrors.Is(err, analysis.ErrNoImage):
		return http.StatusBadRequest, analysis.FailureMessage(err), false
	case stderrors.Is(err, analysis.ErrBusy):
		return http.StatusConflict, "Uma análise já está em andamento.", false
	case stderrors.Is(err, analysis.ErrTimeout):
		return http.StatusGatewayTimeout, analysis.FailureMessage(err), false
	case stderrors.Is(err, analysis.ErrIdentificationInvalid), stderrors.Is(err, analysis.ErrRemote):
		return http.StatusBadGateway, analysis.FailureMessage(err), false
	case errors.IsKind(err, errors.KindConfig):
		return http.StatusBadRequest, "Requisição inválida.", false
	default:
		return http.StatusInternalServerError, "Erro interno.", false
	}
}

// statusClientClosedRequest is nginx's code for a client that went away.
const statusClientClosedRequest = 499

// RespondDomainError maps err with StatusFor and writes the envelope.
func RespondDomainError(c *gin.Context, err error) {
	status, message, fallback := StatusFor(err)
	_ = c.Error(err)
	RespondError(c, status, message, ErrorData{
		Kind:     string(errors.KindOf(err)),
		Error:    err.Error(),
		Fallback: fallback,
	})
}
