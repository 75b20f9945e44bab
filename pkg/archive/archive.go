// Package archive 将多页导出结果打包为 zip
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

var (
	// ErrFinalized 归档已完成，不能再修改
	ErrFinalized = errors.New("归档已完成")
	// ErrDuplicateEntry 条目名称重复
	ErrDuplicateEntry = errors.New("归档条目重复")
)

// ContentType 归档的 MIME 类型
const ContentType = "application/zip"

// Sanitize 将 [A-Za-z0-9_-] 以外的字符替换为下划线
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// EntryName 生成条目名 {sanitized}-page{index}.{ext}
func EntryName(pageName string, index int, ext string) string {
	return fmt.Sprintf("%s-page%d.%s", Sanitize(pageName), index, ext)
}

// Bundle 按插入顺序保存条目的 zip 归档
// Finalize 之后不可变
type Bundle struct {
	buf      bytes.Buffer
	zw       *zip.Writer
	seen     map[string]bool
	modified time.Time
	done     bool
	mu       sync.Mutex
}

// NewBundle 创建归档
func NewBundle() *Bundle {
	b := &Bundle{
		seen:     make(map[string]bool),
		modified: time.Now(),
	}
	b.zw = zip.NewWriter(&b.buf)
	b.zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	return b
}

// Add 追加一个条目
func (b *Bundle) Add(name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return ErrFinalized
	}
	if b.seen[name] {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}

	w, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: b.modified,
	})
	if err != nil {
		return fmt.Errorf("创建归档条目失败: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("写入归档条目失败: %w", err)
	}

	b.seen[name] = true
	return nil
}

// Finalize 写出中央目录并返回归档字节，只能调用一次
func (b *Bundle) Finalize() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return nil, ErrFinalized
	}
	b.done = true
	if err := b.zw.Close(); err != nil {
		return nil, fmt.Errorf("关闭归档失败: %w", err)
	}
	return b.buf.Bytes(), nil
}
