// Package storage はアップロードファイルの保存レイヤーを提供します。
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrUnsupportedType は許可されていない形式のファイルに対して返されます。
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrFileTooLarge はサイズ上限を超えるファイルに対して返されます。
	ErrFileTooLarge = errors.New("file too large")
)

// 受け付ける画像形式。ファイル名の拡張子ではなく内容で判定します。
var allowedImageTypes = []string{"image/jpeg", "image/png"}

// Local はローカルファイルシステムへ保存するストレージです。
type Local struct {
	dir     string
	baseURL string
	maxSize int64
}

// NewLocal は Local を作成し、保存先ディレクトリを用意します。
// baseURL が空の場合、返すURLは /uploads/ からの相対パスになります。
func NewLocal(dir, baseURL string, maxSize int64) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Local{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
	}, nil
}

// SaveImage はアップロードされた画像を検証して保存し、公開URLを返します。
// ファイル名は衝突を避けるため生成し直します。
func (l *Local) SaveImage(fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", fmt.Errorf("file is required")
	}
	if l.maxSize > 0 && fh.Size > l.maxSize {
		return "", ErrFileTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}

	mtype := mimetype.Detect(data)
	if !isAllowedImage(mtype) {
		return "", ErrUnsupportedType
	}

	filename := uuid.NewString() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(l.dir, filename), data, 0o640); err != nil {
		return "", err
	}
	return l.baseURL + "/uploads/" + filename, nil
}

func isAllowedImage(mtype *mimetype.MIME) bool {
	for _, allowed := range allowedImageTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	return false
}
