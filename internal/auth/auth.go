package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	xerrors "AI-Agency/internal/errors"
	loggerpkg "AI-Agency/pkg/logger"
)

// HeaderAPIKey 是携带静态 API Key 的请求头。
const HeaderAPIKey = "X-API-Key"

// Middleware 返回一个校验 X-API-Key 的 HTTP 中间件。
// 校验失败直接返回 401 信封，不再进入后续的路由与查找逻辑。
func Middleware(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(apiKey))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(r.Header.Get(HeaderAPIKey))
			if len(expected) == 0 ||
				len(provided) != len(expected) ||
				subtle.ConstantTimeCompare(provided, expected) != 1 {
				writeUnauthorized(w)
				loggerpkg.AuditFromContext(r.Context()).Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", http.StatusUnauthorized,
				)
				return
			}

			// 记录审计日志。
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r)
			loggerpkg.AuditFromContext(r.Context()).Info("api_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    string(xerrors.CodeUnauthorized),
			"message": xerrors.AttributesOf(xerrors.CodeUnauthorized).Message,
		},
	})
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
