package registry

import (
	"time"

	"gorm.io/datatypes"
)

// FileRecord 是注册表中的一条文件记录
// 创建后不可变：源文件一旦变化 (大小/mtime)，file_id 就会变，旧记录被替换
type FileRecord struct {
	// FileID 主键：sha256(path|size|mtime)
	// 对未变化的文件重新扫描会得到同一个 ID，已有的缓存区因此能重新挂上
	FileID string `gorm:"primaryKey;type:char(64)"`

	// Path 源文件的绝对路径 (同一路径最多对应一条记录)
	Path string `gorm:"uniqueIndex;type:text;not null"`

	// Filename 不含目录的文件名，直接回给客户端
	Filename string `gorm:"type:varchar(255)"`

	// SizeBytes 注册时 stat 到的原始大小
	SizeBytes int64

	// ModTimeNano 注册时的修改时间 (UnixNano，参与 file_id 推导)
	ModTimeNano int64 `gorm:"index"`

	// Attrs 非结构化的扫描元数据 (来源、扫描批次等)
	Attrs datatypes.JSON

	CreatedAt time.Time
}

// TableName 强制指定表名
func (FileRecord) TableName() string {
	return "files"
}
