package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestRegistry 构建隔离的测试环境 (sqlite 内存库，按测试名隔离)
func setupTestRegistry(t *testing.T) *Registry {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	regDB := NewWithConn(db)
	require.NoError(t, regDB.AutoMigrate(&FileRecord{}))

	return NewRegistry(regDB)
}

// writeFile 在目录里放一个测试文件
func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// -----------------------------------------------------------------------------
// 测试用例
// -----------------------------------------------------------------------------

func TestDeriveFileID_Stability(t *testing.T) {
	mt := time.Unix(1700000000, 123)

	id1 := DeriveFileID("/data/a.bin", 100, mt)
	id2 := DeriveFileID("/data/a.bin", 100, mt)
	assert.Equal(t, id1, id2, "同参数必须推导出同一个 ID")
	assert.Len(t, id1, 64)

	// 任何一个分量变化都必须改变 ID
	assert.NotEqual(t, id1, DeriveFileID("/data/b.bin", 100, mt))
	assert.NotEqual(t, id1, DeriveFileID("/data/a.bin", 101, mt))
	assert.NotEqual(t, id1, DeriveFileID("/data/a.bin", 100, mt.Add(time.Nanosecond)))
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "model.bin", []byte("ABC"))

	rec, stale, err := reg.Register(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Equal(t, "model.bin", rec.Filename)
	assert.Equal(t, int64(3), rec.SizeBytes)

	got, err := reg.Lookup(ctx, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, rec.FileID, got.FileID)
	assert.Equal(t, rec.Path, got.Path)

	// 重复注册是幂等的
	rec2, stale, err := reg.Register(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Equal(t, rec.FileID, rec2.FileID)

	_, err = reg.Lookup(ctx, "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestRegistry_RegisterReplacesChangedFile(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "data.bin", []byte("v1"))
	rec1, _, err := reg.Register(ctx, path)
	require.NoError(t, err)

	// 改写文件内容 (size 和 mtime 都变了)
	require.NoError(t, os.WriteFile(path, []byte("v2 longer"), 0644))
	// 有些文件系统 mtime 精度低，强行往后拨一点确保不同
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	rec2, stale, err := reg.Register(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, rec1.FileID, rec2.FileID)
	assert.Equal(t, []string{rec1.FileID}, stale, "旧 ID 必须作为 stale 返回，供调用方清缓存")

	// 旧记录已经不可见
	_, err = reg.Lookup(ctx, rec1.FileID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestRegistry_Remove(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "x.bin", []byte("x"))
	rec, _, err := reg.Register(ctx, path)
	require.NoError(t, err)

	require.NoError(t, reg.Remove(ctx, rec.FileID))
	_, err = reg.Lookup(ctx, rec.FileID)
	assert.ErrorIs(t, err, ErrFileNotFound)

	// 重复删除报 ErrFileNotFound
	assert.ErrorIs(t, reg.Remove(ctx, rec.FileID), ErrFileNotFound)
}

func TestRegistry_Scan(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, dir, "a.bin", []byte("aaa"))
	writeFile(t, dir, "sub/b.bin", []byte("bbbb"))
	writeFile(t, dir, ".DS_Store", []byte("junk"))          // 默认忽略
	writeFile(t, dir, ".cvignore", []byte("*.tmp\n"))       // 用户规则
	writeFile(t, dir, "scratch.tmp", []byte("temp stuff"))  // 命中用户规则

	records, removed, err := reg.Scan(ctx, dir)
	require.NoError(t, err)
	assert.Empty(t, removed)
	require.Len(t, records, 2, "忽略规则必须生效")

	names := []string{records[0].Filename, records[1].Filename}
	assert.Contains(t, names, "a.bin")
	assert.Contains(t, names, "b.bin")

	// 重扫未变化的目录：ID 保持稳定 (缓存区能重新挂上)
	records2, removed, err := reg.Scan(ctx, dir)
	require.NoError(t, err)
	assert.Empty(t, removed)

	ids := map[string]bool{}
	for _, r := range records {
		ids[r.FileID] = true
	}
	for _, r := range records2 {
		assert.True(t, ids[r.FileID], "未变化文件的 ID 不能漂移")
	}
}

func TestRegistry_ScanPrunesDeletedFiles(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()
	dir := t.TempDir()

	pathA := writeFile(t, dir, "a.bin", []byte("aaa"))
	writeFile(t, dir, "b.bin", []byte("bbb"))

	records, _, err := reg.Scan(ctx, dir)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var idA string
	for _, r := range records {
		if r.Filename == "a.bin" {
			idA = r.FileID
		}
	}
	require.NotEmpty(t, idA)

	// 删掉 a.bin 再扫：记录消失，失效 ID 被上报
	require.NoError(t, os.Remove(pathA))

	records, removed, err := reg.Scan(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Contains(t, removed, idA)

	_, err = reg.Lookup(ctx, idA)
	assert.ErrorIs(t, err, ErrFileNotFound)
}
