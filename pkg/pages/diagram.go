package pages

// DiagramSentinel 图表文档没有页面标签时返回的单页描述
var DiagramSentinel = Page{Index: 0, Name: "Page 1", ID: "default"}

// DiscoverDiagram 扫描图表 XML 中的 <diagram> 标签
// 不做完整的 XML 解析，按出现顺序编号
func DiscoverDiagram(content string) []Page {
	tags := scanTags(content, diagramTag)
	if len(tags) == 0 {
		return []Page{DiagramSentinel}
	}
	return pagesFromTags(tags)
}
