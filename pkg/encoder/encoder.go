// Package encoder 将帧序列编码为循环播放的 GIF 动画
package encoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"drawio_gif/pkg/frame"

	"github.com/soniakeys/quant/median"
)

// ErrEmptyInput 没有可编码的帧
var ErrEmptyInput = errors.New("No frames to encode")

// Encoder GIF 编码器
// 所有帧共用一个调色板，帧按输入顺序写出
type Encoder struct {
	config    Config
	quantizer draw.Quantizer
}

// New 创建编码器
func New(config Config) *Encoder {
	config = config.normalize()
	return &Encoder{
		config:    config,
		quantizer: median.Quantizer(config.PaletteSize),
	}
}

// ContentType 输出的 MIME 类型
func (e *Encoder) ContentType() string { return "image/gif" }

// Extension 输出文件扩展名
func (e *Encoder) Extension() string { return "gif" }

// Encode 编码为字节序列
func (e *Encoder) Encode(frames []frame.Frame, fps int) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.EncodeTo(&buf, frames, fps); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo 流式写出 GIF，写入完成并刷新后才返回
// 尺寸取自第 0 帧
func (e *Encoder) EncodeTo(w io.Writer, frames []frame.Frame, fps int) error {
	if len(frames) == 0 {
		return ErrEmptyInput
	}
	if fps <= 0 {
		return fmt.Errorf("帧率无效: %d", fps)
	}

	width, height := frames[0].Width, frames[0].Height
	if width <= 0 || height <= 0 || width > math.MaxUint16 || height > math.MaxUint16 {
		return fmt.Errorf("帧尺寸无效: %dx%d", width, height)
	}

	palette, err := e.buildPalette(frames)
	if err != nil {
		return fmt.Errorf("构建调色板失败: %w", err)
	}

	bw := bufio.NewWriter(w)
	sw, err := newStreamWriter(bw, width, height, palette)
	if err != nil {
		return fmt.Errorf("写入 GIF 头失败: %w", err)
	}

	delay := frameDelay(fps)
	bounds := image.Rect(0, 0, width, height)
	mapper := newColorMapper(palette)
	paletted := image.NewPaletted(bounds, palette)

	for i, f := range frames {
		img, err := f.Decode()
		if err != nil {
			return fmt.Errorf("第 %d 帧: %w", i, err)
		}
		mapper.fill(paletted, img)
		if err := sw.writeFrame(paletted, delay); err != nil {
			return fmt.Errorf("写入第 %d 帧失败: %w", i, err)
		}
	}

	if err := sw.close(); err != nil {
		return fmt.Errorf("写入 GIF 结尾失败: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("刷新输出失败: %w", err)
	}
	return nil
}

// frameDelay 帧间隔，单位 1/100 秒
func frameDelay(fps int) int {
	d := int(math.Round(100 / float64(fps)))
	if d < 1 {
		d = 1
	}
	return d
}

// colorMapper 将真彩色映射到调色板索引，带缓存
type colorMapper struct {
	palette color.Palette
	cache   map[uint32]uint8
}

func newColorMapper(p color.Palette) *colorMapper {
	return &colorMapper{palette: p, cache: make(map[uint32]uint8, 4096)}
}

func (m *colorMapper) index(c color.RGBA) uint8 {
	key := uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
	if idx, ok := m.cache[key]; ok {
		return idx
	}
	idx := uint8(m.palette.Index(c))
	m.cache[key] = idx
	return idx
}

// fill 用 src 填充 dst，超出 src 的部分填 0 号颜色
func (m *colorMapper) fill(dst *image.Paletted, src image.Image) {
	b := dst.Bounds()
	sb := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := dst.Pix[(y-b.Min.Y)*dst.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			sx, sy := sb.Min.X+x, sb.Min.Y+y
			if sx >= sb.Max.X || sy >= sb.Max.Y {
				row[x-b.Min.X] = 0
				continue
			}
			row[x-b.Min.X] = m.index(rgbaAt(src, sx, sy))
		}
	}
}

// rgbaAt 读取像素，不透明的 RGBA/NRGBA 走快速路径
func rgbaAt(img image.Image, x, y int) color.RGBA {
	switch m := img.(type) {
	case *image.RGBA:
		return m.RGBAAt(x, y)
	case *image.NRGBA:
		if c := m.NRGBAAt(x, y); c.A == 0xff {
			return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
		}
	}
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}
