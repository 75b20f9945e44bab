package render

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"drawio_gif/pkg/pages"
)

// Target 一次渲染的目标
// URL 和 HTML 二选一
type Target struct {
	URL            string        // 导航地址
	HTML           string        // 直接写入的文档内容
	PageIndex      int           // 页面序号
	Viewport       Viewport      // 视口尺寸
	ReadySelector  string        // 就绪信号元素
	BoundsSelector string        // 内容区域元素，为空时取整个视口
	Padding        float64       // 内容区域外扩
	Inset          float64       // 视口收缩，仅在 BoundsSelector 为空时使用
	ClickSelector  string        // 就绪后点击的元素
	ClickPause     time.Duration // 点击后的等待时间
}

// Clip 根据查询到的内容区域计算截图区域
func (t Target) Clip(bounds Rect) Rect {
	if t.BoundsSelector == "" {
		return bounds.Inset(t.Inset).Round()
	}
	return bounds.Expand(t.Padding).Round()
}

// For 按文档类型构造渲染目标
func (ts Targets) For(kind pages.Kind, content string, pageIndex int) (Target, error) {
	switch kind {
	case pages.KindDiagram:
		return ts.Diagram.Target(content, pageIndex), nil
	case pages.KindMarkup:
		return ts.Markup.Target(content, pageIndex)
	default:
		return Target{}, fmt.Errorf("%w: %v", pages.ErrUnsupportedKind, kind)
	}
}

// Target 构造图表查看器地址，图表 XML 放在 #R 片段中
func (o DiagramOptions) Target(xml string, pageIndex int) Target {
	q := url.Values{}
	q.Set("highlight", "0000ff")
	q.Set("edit", "_blank")
	q.Set("layers", "1")
	q.Set("nav", "0")
	q.Set("page", fmt.Sprint(pageIndex))
	q.Set("title", "diagram")

	fragment := strings.ReplaceAll(url.QueryEscape(xml), "+", "%20")
	return Target{
		URL:            o.ViewerURL + "?" + q.Encode() + "#R" + fragment,
		PageIndex:      pageIndex,
		Viewport:       o.Viewport,
		ReadySelector:  o.ReadySelector,
		BoundsSelector: o.ReadySelector,
		Padding:        o.Padding,
	}
}

// Target 将页面序号写入内嵌配置后直接加载文档
func (o MarkupOptions) Target(doc string, pageIndex int) (Target, error) {
	addressed, err := pages.AddressMarkupPage(doc, pageIndex)
	if err != nil {
		return Target{}, fmt.Errorf("写入页面序号失败: %w", err)
	}
	return Target{
		HTML:          addressed,
		PageIndex:     pageIndex,
		Viewport:      o.Viewport,
		ReadySelector: o.ReadySelector,
		Inset:         o.Inset,
		ClickSelector: o.ClickSelector,
		ClickPause:    o.ClickPause,
	}, nil
}
