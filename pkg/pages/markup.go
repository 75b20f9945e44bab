package pages

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"html"
	"io"
	"strings"
)

// MarkupSentinel HTML 文档无法解析出页面时返回的单页描述
var MarkupSentinel = Page{Index: 0, Name: "Page", ID: "1"}

const configAttr = "data-mxgraph"

// ErrNoConfigBlock 文档中没有内嵌图表配置
var ErrNoConfigBlock = errors.New("未找到 data-mxgraph 配置")

// graphConfig 内嵌图表配置中关心的字段
type graphConfig struct {
	XML string `json:"xml"`
}

// DiscoverMarkup 从 HTML 文档的 data-mxgraph 配置中发现页面
// 配置缺失、JSON 或 XML 解析失败、没有页面标签时均返回哨兵
func DiscoverMarkup(content string) []Page {
	raw, _, _, err := findConfigBlock(content)
	if err != nil {
		return []Page{MarkupSentinel}
	}

	var cfg graphConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil || cfg.XML == "" {
		return []Page{MarkupSentinel}
	}
	if !wellFormed(cfg.XML) {
		return []Page{MarkupSentinel}
	}

	tags := scanTags(cfg.XML, diagramTag)
	if len(tags) == 0 {
		return []Page{MarkupSentinel}
	}
	return pagesFromTags(tags)
}

// AddressMarkupPage 在内嵌配置中写入初始页面序号
// 文档没有配置块时原样返回
func AddressMarkupPage(content string, index int) (string, error) {
	raw, start, end, err := findConfigBlock(content)
	if errors.Is(err, ErrNoConfigBlock) {
		return content, nil
	}
	if err != nil {
		return "", err
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", err
	}
	page, err := json.Marshal(index)
	if err != nil {
		return "", err
	}
	fields["page"] = page

	encoded, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return content[:start] + `"` + html.EscapeString(string(encoded)) + `"` + content[end:], nil
}

// findConfigBlock 定位 data-mxgraph 属性值
// 返回解码后的值以及原始值（含引号）在文档中的范围
func findConfigBlock(content string) (string, int, int, error) {
	pos := 0
	for {
		i := strings.Index(content[pos:], configAttr)
		if i < 0 {
			return "", 0, 0, ErrNoConfigBlock
		}
		j := pos + i + len(configAttr)
		pos = j
		for j < len(content) && isSpace(content[j]) {
			j++
		}
		if j >= len(content) || content[j] != '=' {
			continue
		}
		j++
		for j < len(content) && isSpace(content[j]) {
			j++
		}
		if j >= len(content) {
			return "", 0, 0, ErrNoConfigBlock
		}
		value, end, ok := readValue(content, j)
		if !ok {
			return "", 0, 0, ErrNoConfigBlock
		}
		return html.UnescapeString(value), j, end, nil
	}
}

// wellFormed 检查 XML 是否能完整解析
func wellFormed(text string) bool {
	dec := xml.NewDecoder(strings.NewReader(text))
	seen := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return seen
		}
		if err != nil {
			return false
		}
		if _, ok := tok.(xml.StartElement); ok {
			seen = true
		}
	}
}
