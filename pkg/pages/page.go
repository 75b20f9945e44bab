// Package pages 提供源文档的页面发现
// 支持结构化图表 XML 和内嵌图表配置的 HTML 文档两种格式
package pages

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Page 页面描述
type Page struct {
	Index int    `json:"index"` // 页面在源文档中的位置，从 0 开始
	Name  string `json:"name"`  // 页面名称
	ID    string `json:"id"`    // 页面标识
}

// Kind 源文档类型
type Kind int

const (
	KindDiagram Kind = iota // 结构化图表文档 (.drawio/.dio/.xml)
	KindMarkup              // 内嵌图表的 HTML 文档 (.html/.htm)
)

// ErrUnsupportedKind 不支持的源文件类型
var ErrUnsupportedKind = errors.New("不支持的文件类型")

var kindExtensions = map[string]Kind{
	".drawio": KindDiagram,
	".dio":    KindDiagram,
	".xml":    KindDiagram,
	".html":   KindMarkup,
	".htm":    KindMarkup,
}

// String 返回类型名称
func (k Kind) String() string {
	switch k {
	case KindDiagram:
		return "diagram"
	case KindMarkup:
		return "markup"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Extensions 返回该类型接受的文件扩展名
func (k Kind) Extensions() []string {
	var exts []string
	for _, ext := range []string{".drawio", ".dio", ".xml", ".html", ".htm"} {
		if kindExtensions[ext] == k {
			exts = append(exts, ext)
		}
	}
	return exts
}

// KindFromFilename 根据文件扩展名判断源文档类型
func KindFromFilename(filename string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	kind, ok := kindExtensions[ext]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, ext)
	}
	return kind, nil
}

// LooksLikeDiagram 粗略检查内容是否为图表 XML
func LooksLikeDiagram(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	return strings.Contains(content, "mxfile") || strings.Contains(content, "mxGraphModel")
}

// Discover 按源文档类型发现页面
// 任何解析异常都退化为单页哨兵，不返回错误
func Discover(kind Kind, content string) []Page {
	switch kind {
	case KindMarkup:
		return DiscoverMarkup(content)
	default:
		return DiscoverDiagram(content)
	}
}

// defaultPage 填充缺省的名称和标识
// 属性存在但为空字符串时按缺失处理，同样使用缺省值，不保留空名称
func defaultPage(index int, attrs map[string]string) Page {
	p := Page{
		Index: index,
		Name:  attrs["name"],
		ID:    attrs["id"],
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("Page %d", index+1)
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("page-%d", index)
	}
	return p
}

// pagesFromTags 将扫描到的页面标签转换为页面列表
func pagesFromTags(tags []map[string]string) []Page {
	result := make([]Page, 0, len(tags))
	for i, attrs := range tags {
		result = append(result, defaultPage(i, attrs))
	}
	return result
}
