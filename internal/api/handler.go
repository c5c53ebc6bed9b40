package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/tgbridge/internal/bridge"
	"go.uber.org/zap"
)

type handler struct {
	sender Sender
	logger *zap.Logger
}

type sendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *handler) send(c *gin.Context) {
	var req bridge.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, sendResponse{Message: "Invalid JSON: " + err.Error()})
		return
	}

	res := h.sender.Send(c.Request.Context(), req)
	c.JSON(statusFor(res), sendResponse{Success: res.Success, Message: res.Message})
}

func statusFor(res bridge.Result) int {
	switch res.Outcome {
	case bridge.Rejected:
		return http.StatusBadRequest
	case bridge.TimedOut:
		return http.StatusGatewayTimeout
	case bridge.Completed:
		if res.Success {
			return http.StatusOK
		}
	}
	return http.StatusInternalServerError
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, sendResponse{Message: "Endpoint not found"})
}
