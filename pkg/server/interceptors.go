package server

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// =============================================================================
// 1. Logging Middleware (结构化日志)
// =============================================================================

// statusRecorder 截获业务 handler 写出的状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware 记录每个请求的方法、路径、状态码和耗时
// 使用 Go 1.21+ 标准库 slog，这是目前的最佳实践
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		logRequest(r.Method, r.URL.Path, rec.status, duration)
	})
}

// logRequest 统一的日志打印逻辑
func logRequest(method, path string, status int, duration time.Duration) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		// NotFound 这种业务错误算 Warn，5xx 才算 Error
		level = slog.LevelWarn
	}

	slog.Log(context.Background(), level, "HTTP Request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("dur", duration),
	)
}

// =============================================================================
// 2. Recovery Middleware (防弹衣)
// =============================================================================

// RecoveryMiddleware 捕获 Panic
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				// 打印堆栈信息，方便调试
				slog.Error("🔥 PANIC RECOVERED",
					slog.Any("panic", p),
					slog.String("stack", string(debug.Stack())),
				)
				// 返回友好的 500，而不是直接断开连接
				writeJSON(w, http.StatusInternalServerError,
					map[string]any{"error": "internal server error: panic recovered"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// 3. CORS Middleware (浏览器消费方)
// =============================================================================

// CORSMiddleware 放行跨域请求
// 消费方是浏览器里的前端页面，API 本身无鉴权，全放开
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
