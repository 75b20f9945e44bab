package pages

import (
	"html"
	"strings"
)

const diagramTag = "diagram"

// scanTags 线性扫描指定名称的开始标签，返回每个标签的属性
// 没有闭合 '>' 的标签会被忽略
func scanTags(text, name string) []map[string]string {
	var tags []map[string]string
	open := "<" + name
	pos := 0
	for {
		i := strings.Index(text[pos:], open)
		if i < 0 {
			return tags
		}
		start := pos + i + len(open)
		pos = start
		if start < len(text) && !isTagBoundary(text[start]) {
			continue
		}
		attrs, end, ok := parseAttrs(text, start)
		if !ok {
			return tags
		}
		tags = append(tags, attrs)
		pos = end
	}
}

func isTagBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '>', '/':
		return true
	}
	return false
}

// parseAttrs 从 start 开始解析属性直到标签结束
// 返回属性表和标签结束后的位置
func parseAttrs(text string, start int) (map[string]string, int, bool) {
	attrs := make(map[string]string)
	i := start
	for i < len(text) {
		c := text[i]
		switch {
		case c == '>':
			return attrs, i + 1, true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/':
			i++
		default:
			keyStart := i
			for i < len(text) && text[i] != '=' && text[i] != '>' && text[i] != '/' && !isSpace(text[i]) {
				i++
			}
			key := text[keyStart:i]
			for i < len(text) && isSpace(text[i]) {
				i++
			}
			if i >= len(text) || text[i] != '=' {
				// 无值属性
				if key != "" {
					attrs[key] = ""
				}
				continue
			}
			i++
			for i < len(text) && isSpace(text[i]) {
				i++
			}
			if i >= len(text) {
				return nil, 0, false
			}
			value, next, ok := readValue(text, i)
			if !ok {
				return nil, 0, false
			}
			if _, exists := attrs[key]; !exists {
				attrs[key] = html.UnescapeString(value)
			}
			i = next
		}
	}
	return nil, 0, false
}

// readValue 读取带引号或不带引号的属性值
func readValue(text string, i int) (string, int, bool) {
	quote := text[i]
	if quote == '"' || quote == '\'' {
		end := strings.IndexByte(text[i+1:], quote)
		if end < 0 {
			return "", 0, false
		}
		return text[i+1 : i+1+end], i + 2 + end, true
	}
	j := i
	for j < len(text) && text[j] != '>' && !isSpace(text[j]) {
		j++
	}
	return text[i:j], j, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
