package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"chunkvault/pkg/app"
	"chunkvault/pkg/cachestore/disk"
	"chunkvault/pkg/codec"
	"chunkvault/pkg/registry"
	"chunkvault/pkg/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	regDB := registry.NewWithConn(db)
	require.NoError(t, regDB.AutoMigrate(&registry.FileRecord{}))
	reg := registry.NewRegistry(regDB)

	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)

	codecs := codec.NewRegistry(codec.Options{})
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	application := &app.App{
		Store:    store,
		Registry: reg,
		Codecs:   codecs,
		Chunks:   service.NewChunkService(reg, store, codecs, log),
		Info:     service.NewInfoService(reg, store, codecs, log),
		InputDir: t.TempDir(),
		Log:      log,
	}

	// 测试用小边界，方便在小文件上切出多块
	limits := Limits{Default: 64, Min: 16, Max: 4096}
	ts := httptest.NewServer(NewServer(application, limits).Handler())
	t.Cleanup(ts.Close)

	return ts, application
}

func registerTestFile(t *testing.T, application *app.App, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	rec, err := application.Chunks.RegisterFile(context.Background(), path)
	require.NoError(t, err)
	return rec.FileID
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// -----------------------------------------------------------------------------

func TestServer_Health(t *testing.T) {
	ts, application := setupTestServer(t)
	registerTestFile(t, application, "a.bin", []byte("aaa"))

	body := getJSON(t, ts.URL+"/health", http.StatusOK)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["files_count"])
}

func TestServer_ListFiles(t *testing.T) {
	ts, application := setupTestServer(t)
	registerTestFile(t, application, "b.bin", []byte("bbbb"))
	registerTestFile(t, application, "a.bin", []byte("aaa"))

	body := getJSON(t, ts.URL+"/files", http.StatusOK)
	files := body["files"].([]any)
	require.Len(t, files, 2)

	// 按文件名排序
	first := files[0].(map[string]any)
	assert.Equal(t, "a.bin", first["filename"])
	assert.Equal(t, float64(3), first["size"])
}

func TestServer_ChunkRoundTrip(t *testing.T) {
	ts, application := setupTestServer(t)

	content := []byte("ABC")
	fid := registerTestFile(t, application, "tiny.bin", content)

	body := getJSON(t, fmt.Sprintf("%s/chunk/%s/0?encoding=base64", ts.URL, fid), http.StatusOK)
	assert.Equal(t, "QUJD", body["data"], `"ABC" 的 base64 编码必须是 "QUJD"`)
	assert.Equal(t, true, body["is_last"])
	assert.Equal(t, float64(1), body["total_chunks"])
	assert.Equal(t, float64(4), body["actual_chunk_size"])
	assert.Equal(t, "base64", body["encoding"])
}

func TestServer_ChunkReassembly(t *testing.T) {
	ts, application := setupTestServer(t)

	content := make([]byte, 500)
	for i := range content {
		content[i] = byte(i * 7)
	}
	fid := registerTestFile(t, application, "data.bin", content)

	var encoded bytes.Buffer
	for index := 0; ; index++ {
		body := getJSON(t, fmt.Sprintf("%s/chunk/%s/%d?encoding=base64&chunk_size=64", ts.URL, fid, index),
			http.StatusOK)
		encoded.WriteString(body["data"].(string))
		if body["is_last"].(bool) {
			break
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded.String())
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestServer_InfoFlipsToProcessed(t *testing.T) {
	ts, application := setupTestServer(t)

	content := make([]byte, 500)
	fid := registerTestFile(t, application, "data.bin", content)

	infoURL := fmt.Sprintf("%s/file/%s/info?encoding=hex&chunk_size=64", ts.URL, fid)

	body := getJSON(t, infoURL, http.StatusOK)
	assert.Equal(t, false, body["is_processed"])
	assert.Equal(t, float64(500), body["original_size"])

	// 预热全部 chunk 后 is_processed 必须翻转
	_, err := application.Chunks.EncodeAll(context.Background(), fid, "hex", 64, 2)
	require.NoError(t, err)

	body = getJSON(t, infoURL, http.StatusOK)
	assert.Equal(t, true, body["is_processed"])
	assert.Equal(t, float64(1000), body["encoded_size"])
}

func TestServer_ErrorMapping(t *testing.T) {
	ts, application := setupTestServer(t)
	fid := registerTestFile(t, application, "x.bin", []byte("x"))

	// 未知 file_id -> 404
	getJSON(t, ts.URL+"/chunk/deadbeef/0", http.StatusNotFound)
	getJSON(t, ts.URL+"/file/deadbeef/info", http.StatusNotFound)

	// 未知编码 -> 400
	getJSON(t, fmt.Sprintf("%s/chunk/%s/0?encoding=rot13", ts.URL, fid), http.StatusBadRequest)

	// 越界 index -> 416
	getJSON(t, fmt.Sprintf("%s/chunk/%s/99", ts.URL, fid), http.StatusRequestedRangeNotSatisfiable)

	// 非数字 index -> 400
	getJSON(t, fmt.Sprintf("%s/chunk/%s/abc", ts.URL, fid), http.StatusBadRequest)
}

func TestServer_ChunkSizeClamped(t *testing.T) {
	ts, application := setupTestServer(t)
	fid := registerTestFile(t, application, "x.bin", []byte("xyz"))

	// 边界是 [16, 4096]：1 会被提到 16，100000 会被压到 4096
	body := getJSON(t, fmt.Sprintf("%s/chunk/%s/0?chunk_size=1", ts.URL, fid), http.StatusOK)
	assert.Equal(t, float64(16), body["chunk_size_used"])

	body = getJSON(t, fmt.Sprintf("%s/chunk/%s/0?chunk_size=100000", ts.URL, fid), http.StatusOK)
	assert.Equal(t, float64(4096), body["chunk_size_used"])
}

func TestServer_UploadAndDelete(t *testing.T) {
	ts, application := setupTestServer(t)

	// multipart 上传
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "uploaded.bin")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello upload"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	fid := body["file_id"].(string)
	assert.Equal(t, "uploaded.bin", body["filename"])

	// 文件真的落在输入目录里
	data, err := os.ReadFile(filepath.Join(application.InputDir, "uploaded.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello upload"), data)

	// 能按 file_id 取 chunk
	getJSON(t, fmt.Sprintf("%s/chunk/%s/0", ts.URL, fid), http.StatusOK)

	// DELETE 后一切 404
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/file/"+fid, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	io.Copy(io.Discard, delResp.Body)
	delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	getJSON(t, fmt.Sprintf("%s/chunk/%s/0", ts.URL, fid), http.StatusNotFound)
}

func TestServer_UploadRejectsBadFilenames(t *testing.T) {
	ts, _ := setupTestServer(t)

	// ".." 会通过 filepath.Base 原样漏下来，必须在入口拒掉
	for _, name := range []string{"..", ".", "/"} {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("payload"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &buf)
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "filename %q", name)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	ts, _ := setupTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/files", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
