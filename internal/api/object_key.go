package api

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxObjectKeyLen = 200

// isUserResumeObjectKey 校验对象键属于该用户的简历目录，且不含路径穿越片段。
func isUserResumeObjectKey(userID uint, key string) bool {
	if key == "" || !utf8.ValidString(key) || len(key) > maxObjectKeyLen {
		return false
	}
	if !strings.HasPrefix(key, fmt.Sprintf("resumes/%d/", userID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, ".txt") || strings.HasSuffix(lower, ".tex")
}
