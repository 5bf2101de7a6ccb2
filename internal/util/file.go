package util

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

// ErrMimeMismatch 文件内容与允许的类型不符
var ErrMimeMismatch = errors.New("file content does not match allowed types")

// SniffMimeType 读取文件头检测 MIME 类型，返回的 reader 会重放已读取的部分
// allowedTypes: 允许的 MIME 前缀或完整类型，如 "image/"
func SniffMimeType(reader io.Reader, allowedTypes []string) (string, io.Reader, error) {
	buffer := make([]byte, 512)
	n, err := io.ReadFull(reader, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head := buffer[:n]
	replay := io.MultiReader(bytes.NewReader(head), reader)

	mimeType := http.DetectContentType(head)
	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) || mimeType == allowed {
			return mimeType, replay, nil
		}
	}
	return mimeType, nil, ErrMimeMismatch
}
