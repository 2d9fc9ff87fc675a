package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"chunkvault/pkg/app"
	"chunkvault/pkg/cachestore"
	"chunkvault/pkg/codec"
	"chunkvault/pkg/planner"
	"chunkvault/pkg/registry"
)

// Limits 是 chunk_size 查询参数的边界
// 请求值会被 clamp 到 [Min, Max]，缺省用 Default
type Limits struct {
	Default int64
	Min     int64
	Max     int64
}

// DefaultLimits: 1 MiB 默认，[1 KiB, 10 MiB] 边界
var DefaultLimits = Limits{
	Default: 1 << 20,
	Min:     1 << 10,
	Max:     10 << 20,
}

// Server 是面向浏览器的 HTTP JSON API
type Server struct {
	app    *app.App
	limits Limits
}

func NewServer(application *app.App, limits Limits) *Server {
	if limits.Default <= 0 {
		limits = DefaultLimits
	}
	return &Server{app: application, limits: limits}
}

// Handler 组装全部路由和中间件
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /files", s.handleListFiles)
	mux.HandleFunc("GET /file/{file_id}/info", s.handleFileInfo)
	mux.HandleFunc("GET /chunk/{file_id}/{chunk_index}", s.handleChunk)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("DELETE /file/{file_id}", s.handleDeleteFile)

	// 中间件从外到内：恢复 -> 日志 -> CORS -> 业务
	return RecoveryMiddleware(LoggingMiddleware(CORSMiddleware(mux)))
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	records, err := s.app.Registry.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"files_count": len(records),
		"encodings":   s.app.Codecs.Names(),
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	records, err := s.app.Registry.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	files := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		files = append(files, map[string]any{
			"file_id":  rec.FileID,
			"filename": rec.Filename,
			"size":     rec.SizeBytes,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("file_id")
	encoding := queryEncoding(r)
	chunkSize := s.queryChunkSize(r)

	info, err := s.app.Info.GetInfo(r.Context(), fileID, encoding, chunkSize)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file_id":       info.FileID,
		"filename":      info.Filename,
		"original_size": info.OriginalSize,
		"encoded_size":  info.EncodedSize,
		"total_chunks":  info.TotalChunks,
		"chunk_size":    info.ChunkSize,
		"encoding":      info.Encoding,
		"is_processed":  info.IsProcessed,
	})
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("file_id")
	index, err := strconv.ParseInt(r.PathValue("chunk_index"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": fmt.Sprintf("invalid chunk index: %q", r.PathValue("chunk_index")),
		})
		return
	}

	encoding := queryEncoding(r)
	chunkSize := s.queryChunkSize(r)

	chunk, err := s.app.Chunks.GetChunk(r.Context(), fileID, index, encoding, chunkSize)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chunk_number":      chunk.Index,
		"total_chunks":      chunk.TotalChunks,
		"data":              string(chunk.Data),
		"is_last":           chunk.IsLast,
		"chunk_size_used":   chunk.ChunkSize,
		"actual_chunk_size": len(chunk.Data),
		"encoding":          chunk.Encoding,
	})
}

// handleUpload 接收 multipart 上传，落盘到输入目录后登记进注册表
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "multipart field 'file' is required",
		})
		return
	}
	defer file.Close()

	// 只取 base name，丢掉客户端路径里的任何目录成分
	// 注意 Base 可能返回 ".."，放进 Join 会逃出输入目录
	name := filepath.Base(header.Filename)
	if name == "." || name == ".." || name == "/" || name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid filename"})
		return
	}

	if err := os.MkdirAll(s.app.InputDir, 0755); err != nil {
		s.writeError(w, err)
		return
	}
	dstPath := filepath.Join(s.app.InputDir, name)

	dst, err := os.Create(dstPath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(dstPath)
		s.writeError(w, err)
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		s.writeError(w, err)
		return
	}

	rec, err := s.app.Chunks.RegisterFile(r.Context(), dstPath)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file_id":  rec.FileID,
		"filename": rec.Filename,
		"size":     rec.SizeBytes,
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("file_id")
	if err := s.app.Chunks.RemoveFile(r.Context(), fileID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": fileID})
}

// =============================================================================
// 参数解析与错误映射
// =============================================================================

func queryEncoding(r *http.Request) string {
	if enc := r.URL.Query().Get("encoding"); enc != "" {
		return enc
	}
	return "base64"
}

// queryChunkSize 解析 chunk_size 并 clamp 到配置边界
// 超界不是错误：静默夹紧，浏览器端的滑块可以随便拖
func (s *Server) queryChunkSize(r *http.Request) int64 {
	raw := r.URL.Query().Get("chunk_size")
	if raw == "" {
		return s.limits.Default
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return s.limits.Default
	}
	if v < s.limits.Min {
		return s.limits.Min
	}
	if v > s.limits.Max {
		return s.limits.Max
	}
	return v
}

// writeError 把领域层的哨兵错误映射到 HTTP 状态码
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, registry.ErrFileNotFound), errors.Is(err, cachestore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, planner.ErrChunkOutOfRange):
		status = http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, codec.ErrUnsupportedEncoding):
		status = http.StatusBadRequest
	case errors.Is(err, codec.ErrMalformedInput):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, cachestore.ErrWriteFailed):
		// 瞬时错误：写入是原子的，客户端重试即可
		status = http.StatusServiceUnavailable
	case errors.Is(err, planner.ErrPlanInconsistent):
		status = http.StatusInternalServerError
	case errors.Is(err, context.Canceled):
		// 客户端跑了，199 以下没有标准码，用 nginx 的 499 惯例
		status = 499
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "err", err)
	}
}
