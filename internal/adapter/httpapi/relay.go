package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"retryrelay/internal/platform/httpclient"
	"retryrelay/internal/shared"
	"retryrelay/pkg/retry"
)

type relayRetry struct {
	RetryTimes      int `json:"retry_times" binding:"gte=0,lte=100"`
	RetryIntervalMS int `json:"retry_interval_ms" binding:"gte=0"`
	TimeoutMS       int `json:"timeout_ms" binding:"gte=0"`
}

type relayRequest struct {
	URL            string            `json:"url" binding:"required,url"`
	Method         string            `json:"method" binding:"omitempty,oneof=GET POST PUT DELETE get post put delete"`
	Headers        map[string]string `json:"headers"`
	Data           any               `json:"data"`
	Code           string            `json:"code"`
	UseRawData     bool              `json:"use_raw_data"`
	UseRawResponse bool              `json:"use_raw_response"`
	WithTimestamp  bool              `json:"with_timestamp"`
	Retry          *relayRetry       `json:"retry"`
}

type relayResponse struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

type errorResponse struct {
	Error          string `json:"error"`
	Kind           string `json:"kind"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	Attempts       int    `json:"attempts,omitempty"`
}

func (h *handler) relay(c *gin.Context) {
	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: shared.KindValidation.String()})
		return
	}

	resp, err := h.Relayer.Request(c.Request.Context(), h.requestConfig(req))
	if err != nil {
		status, body := relayError(err)
		h.Log.Warn("relay failed", "url", req.URL, "status", status, "error", err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, relayResponse{Status: resp.Status, Data: resp.Payload()})
}

func (h *handler) requestConfig(req relayRequest) httpclient.RequestConfig {
	opts := h.Retry
	if req.Retry != nil {
		opts = httpclient.RetryOptions{
			RetryTimes:    req.Retry.RetryTimes,
			RetryInterval: time.Duration(req.Retry.RetryIntervalMS) * time.Millisecond,
			Timeout:       time.Duration(req.Retry.TimeoutMS) * time.Millisecond,
		}
	}
	return httpclient.RequestConfig{
		URL:            req.URL,
		Method:         req.Method,
		Headers:        req.Headers,
		Data:           req.Data,
		Timeout:        h.AttemptTimeout,
		Code:           req.Code,
		UseRawData:     req.UseRawData,
		UseRawResponse: req.UseRawResponse,
		WithTimestamp:  req.WithTimestamp,
		Retry:          &opts,
	}
}

// relayError maps a failed relay to a response. An upstream 404 or an
// unclassified transport error is still the upstream's fault and becomes 502.
func relayError(err error) (int, errorResponse) {
	kind := shared.KindOf(err)
	body := errorResponse{Error: shared.MessageOf(err, "upstream request failed"), Kind: kind.String()}

	var te *retry.TimeoutError
	if errors.As(err, &te) {
		body.Attempts = te.Attempts
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		body.UpstreamStatus = se.Status
	}

	switch kind {
	case shared.KindNotFound, shared.KindUnknown:
		return http.StatusBadGateway, body
	default:
		return shared.StatusOf(err), body
	}
}

// recovered answers a handler panic with a 500 in the relay's error shape.
func recovered(log *slog.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, v any) {
		err := shared.MarkKind(fmt.Errorf("panic: %v", v), shared.KindInternal)
		log.Error("handler panicked", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(shared.StatusOf(err), errorResponse{
			Error: "internal error",
			Kind:  shared.KindOf(err).String(),
		})
	}
}
