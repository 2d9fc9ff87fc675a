package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrFileNotFound 请求的 file_id 不在注册表里
	ErrFileNotFound = errors.New("file not found")
)

// Registry 管理源文件的发现与标识
// 它是 FileRecord 的唯一属主：其他组件只能通过 file_id 读取记录
type Registry struct {
	db *DB
}

func NewRegistry(db *DB) *Registry {
	return &Registry{db: db}
}

// DeriveFileID 从 (路径, 大小, mtime) 确定性地推导 file_id
// 未变化的文件重扫后 ID 不变 (已有缓存区自动重新挂上)；
// 内容变化必然带动 size/mtime 变化，旧 ID 随之失效
func DeriveFileID(path string, size int64, modTime time.Time) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(size, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(modTime.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Register 把一个文件登记进注册表 (上传层的编程入口)
// 返回值 staleIDs: 同一路径上被替换掉的旧 file_id (文件内容变过)，
// 调用方必须据此清理旧缓存区，保证删除语义的事务性
func (r *Registry) Register(ctx context.Context, path string) (FileRecord, []string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileRecord{}, nil, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileRecord{}, nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return FileRecord{}, nil, err
	}
	if !info.Mode().IsRegular() {
		return FileRecord{}, nil, fmt.Errorf("not a regular file: %s", path)
	}

	rec := FileRecord{
		FileID:      DeriveFileID(absPath, info.Size(), info.ModTime()),
		Path:        absPath,
		Filename:    filepath.Base(absPath),
		SizeBytes:   info.Size(),
		ModTimeNano: info.ModTime().UnixNano(),
		Attrs:       datatypes.JSON([]byte(`{"source":"scan"}`)),
	}

	var staleIDs []string
	err = r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 同一路径的旧记录 (不同 ID = 文件变过) 要先退场
		var stale []FileRecord
		if err := tx.Where("path = ? AND file_id <> ?", rec.Path, rec.FileID).Find(&stale).Error; err != nil {
			return err
		}
		for _, s := range stale {
			staleIDs = append(staleIDs, s.FileID)
		}
		if len(stale) > 0 {
			if err := tx.Where("path = ? AND file_id <> ?", rec.Path, rec.FileID).
				Delete(&FileRecord{}).Error; err != nil {
				return err
			}
		}

		// 幂等写入：ID 已存在就什么都不做 (记录不可变)
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}},
			DoNothing: true,
		}).Create(&rec).Error
	})
	if err != nil {
		return FileRecord{}, nil, fmt.Errorf("failed to register %s: %w", path, err)
	}

	return rec, staleIDs, nil
}

// Lookup 按 file_id 查找记录
func (r *Registry) Lookup(ctx context.Context, fileID string) (FileRecord, error) {
	var rec FileRecord
	err := r.db.GetConn().WithContext(ctx).
		Where("file_id = ?", fileID).
		First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FileRecord{}, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if err != nil {
		return FileRecord{}, err
	}
	return rec, nil
}

// List 返回全部记录 (按文件名排序，保证输出稳定)
func (r *Registry) List(ctx context.Context) ([]FileRecord, error) {
	var recs []FileRecord
	err := r.db.GetConn().WithContext(ctx).
		Order("filename ASC").
		Find(&recs).Error
	return recs, err
}

// Remove 删除一条记录
// 调用方 (service 层) 负责同时清空该 ID 的所有缓存区 —— 注册表删了、
// 缓存还在的状态绝不允许被观察到，所以删除顺序必须是先注册表后缓存
func (r *Registry) Remove(ctx context.Context, fileID string) error {
	result := r.db.GetConn().WithContext(ctx).
		Where("file_id = ?", fileID).
		Delete(&FileRecord{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return nil
}

// Scan 扫描输入目录并重建注册表
// 返回当前有效的全部记录，以及这次扫描中失效的旧 file_id
// (文件被删除或内容变化)，调用方据此清理缓存
func (r *Registry) Scan(ctx context.Context, dir string) ([]FileRecord, []string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, err
	}

	matcher, err := NewMatcher(absDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile ignore rules: %w", err)
	}

	seen := make(map[string]bool) // path -> 仍然存在
	var records []FileRecord
	var removedIDs []string

	walkErr := filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(absDir, path)
		if err != nil {
			return err
		}
		if matcher.Matches(rel) {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rec, staleIDs, err := r.Register(ctx, path)
		if err != nil {
			return err
		}
		removedIDs = append(removedIDs, staleIDs...)
		records = append(records, rec)
		seen[rec.Path] = true
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("scan of %s failed: %w", dir, walkErr)
	}

	// 清掉磁盘上已经消失的记录
	existing, err := r.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range existing {
		if seen[rec.Path] {
			continue
		}
		// 不在本次扫描目录下的记录 (比如单独 Register 的路径) 保留
		if rel, err := filepath.Rel(absDir, rec.Path); err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if err := r.Remove(ctx, rec.FileID); err != nil && !errors.Is(err, ErrFileNotFound) {
			return nil, nil, err
		}
		removedIDs = append(removedIDs, rec.FileID)
	}

	return records, removedIDs, nil
}
