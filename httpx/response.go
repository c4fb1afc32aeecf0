package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KOMKZ/go-yogan-admission/errcode"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response uniform response body
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// OkJson 200 with data
func OkJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// InternalErrorJson 500 response
func InternalErrorJson(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Response{
		Code: 500,
		Msg:  msg,
	})
}

// NoRouteHandler 404 for engine.NoRoute
func NoRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{
			Code: 404,
			Msg:  "route not found: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

// NoMethodHandler 405 for engine.NoMethod
func NoMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, Response{
			Code: 405,
			Msg:  "method not allowed: " + c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}

// HandleError renders err and aborts the chain.
// A LayeredError keeps its status, code and data; anything else is a 500.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	cfg := getErrorLoggingConfig(c)
	status, body := renderError(c.Request.Context(), cfg, err)
	c.AbortWithStatusJSON(status, body)
}

// WriteError net/http counterpart of HandleError, logging disabled
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	status, body := renderError(r.Context(), DefaultErrorLoggingConfig().internal(), err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func renderError(ctx context.Context, cfg errorLoggingConfigInternal, err error) (int, Response) {
	ctxLogger := logger.GetLogger("httpx")

	var layeredErr *errcode.LayeredError
	if errors.As(err, &layeredErr) {
		if shouldLogError(cfg, layeredErr) {
			fields := []zap.Field{
				zap.Int("error_code", layeredErr.Code()),
				zap.String("error_msg", layeredErr.Message()),
			}
			if cfg.FullErrorChain {
				fields = append(fields,
					zap.String("error_chain", layeredErr.String()),
					zap.Error(err))
			}

			switch cfg.LogLevel {
			case "warn":
				ctxLogger.WarnCtx(ctx, "Request failed", fields...)
			case "info":
				ctxLogger.InfoCtx(ctx, "Request failed", fields...)
			default:
				ctxLogger.ErrorCtx(ctx, "Request failed", fields...)
			}
		}

		var data interface{}
		if len(layeredErr.Data()) > 0 {
			data = layeredErr.Data()
		}
		return layeredErr.HTTPStatus(), Response{
			Code: layeredErr.Code(),
			Msg:  layeredErr.Message(),
			Data: data,
		}
	}

	if cfg.Enable {
		ctxLogger.ErrorCtx(ctx, "Request failed", zap.Error(err))
	}
	return http.StatusInternalServerError, Response{
		Code: 500,
		Msg:  http.StatusText(http.StatusInternalServerError),
	}
}

func shouldLogError(cfg errorLoggingConfigInternal, err *errcode.LayeredError) bool {
	return cfg.Enable && !cfg.IgnoreStatusMap[err.HTTPStatus()]
}
