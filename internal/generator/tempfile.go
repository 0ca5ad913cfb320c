package generator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteTempResume 将简历内容原样写入临时目录，返回路径与清理函数。
// 文件名含 uuid，并发请求互不覆盖。
func WriteTempResume(dir, content, format string) (string, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}

	ext := "txt"
	if format == "latex" {
		ext = "tex"
	}
	path := filepath.Join(dir, fmt.Sprintf("resume_%s.%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", nil, fmt.Errorf("write temp resume: %w", err)
	}

	cleanup := func() {
		_ = os.Remove(path)
	}
	return path, cleanup, nil
}
