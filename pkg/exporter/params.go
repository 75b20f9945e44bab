package exporter

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// 参数范围
const (
	MinDuration     = 1
	MaxDuration     = 60
	MinFPS          = 1
	MaxFPS          = 30
	DefaultDuration = 5
	DefaultFPS      = 10
)

// ErrInvalidInput 参数不合法
var ErrInvalidInput = errors.New("invalid input")

// Params 转换参数
type Params struct {
	DurationSeconds int  `json:"duration" bson:"duration"`    // 录制时长（秒）
	FPS             int  `json:"fps" bson:"fps"`              // 帧率
	PageIndex       int  `json:"pageIndex" bson:"page_index"` // 页面序号
	ExportAll       bool `json:"exportAll" bson:"export_all"` // 是否导出全部页面
}

// DefaultParams 返回默认参数
func DefaultParams() Params {
	return Params{DurationSeconds: DefaultDuration, FPS: DefaultFPS}
}

// Validate 检查参数范围
func (p Params) Validate() error {
	if p.DurationSeconds < MinDuration || p.DurationSeconds > MaxDuration {
		return fmt.Errorf("%w: Duration must be between %d and %d seconds", ErrInvalidInput, MinDuration, MaxDuration)
	}
	if p.FPS < MinFPS || p.FPS > MaxFPS {
		return fmt.Errorf("%w: FPS must be between %d and %d", ErrInvalidInput, MinFPS, MaxFPS)
	}
	if p.PageIndex < 0 {
		return fmt.Errorf("%w: page index must be non-negative", ErrInvalidInput)
	}
	return nil
}

// OutputName 用 ext 替换源文件扩展名
// ext 包含点号或后缀，例如 ".gif"、"-all.zip"
func OutputName(source, ext string) string {
	base := filepath.Base(source)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "output" + ext
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		name = "output"
	}
	return name + ext
}
