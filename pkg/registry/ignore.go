package registry

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 封装输入目录的忽略逻辑
// 负责判断扫描时哪些文件不应该进注册表
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// rootPath: 输入目录 (用于查找 .cvignore 文件)
func NewMatcher(rootPath string) (*Matcher, error) {
	// 系统级默认忽略规则，强制生效
	defaultRules := []string{
		".cvignore", // 忽略规则文件本身不是待编码的数据
		".cv",       // 仓库元数据目录
		".git",

		// --- 安全与配置 ---
		"config.yaml", // 防止 S3 Secret Key 被注册成可下载文件
		".env",

		// --- 常见垃圾文件 ---
		".DS_Store", // macOS
		"Thumbs.db", // Windows
	}

	var ignorer *gitignore.GitIgnore
	var err error

	ignoreFilePath := filepath.Join(rootPath, ".cvignore")
	if _, errStat := os.Stat(ignoreFilePath); errStat == nil {
		// 用户规则 + 默认规则合并编译
		ignorer, err = gitignore.CompileIgnoreFileAndLines(ignoreFilePath, defaultRules...)
	} else {
		ignorer = gitignore.CompileIgnoreLines(defaultRules...)
	}
	if err != nil {
		return nil, err
	}

	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查相对路径是否命中忽略规则
// 返回 true 表示应该跳过
func (m *Matcher) Matches(path string) bool {
	if m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
