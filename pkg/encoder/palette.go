package encoder

import (
	"image"
	"image/color"

	"drawio_gif/pkg/frame"
)

// buildPalette 从均匀抽取的帧中按步长采样像素，生成共用调色板
func (e *Encoder) buildPalette(frames []frame.Frame) (color.Palette, error) {
	var pixels []color.RGBA
	for _, i := range sampleIndexes(len(frames), e.config.SampleFrames) {
		img, err := frames[i].Decode()
		if err != nil {
			return nil, err
		}
		pixels = appendSamples(pixels, img, e.config.Quality)
	}

	sample := image.NewRGBA(image.Rect(0, 0, len(pixels), 1))
	for x, c := range pixels {
		sample.SetRGBA(x, 0, c)
	}

	palette := e.quantizer.Quantize(make(color.Palette, 0, e.config.PaletteSize), sample)
	if len(palette) == 0 {
		palette = append(palette, color.RGBA{A: 0xff})
	}
	return palette, nil
}

// sampleIndexes 在 [0, n) 中均匀取最多 k 个下标，包含首尾
func sampleIndexes(n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if k == 1 {
		return []int{0}
	}
	out := make([]int, 0, k)
	for j := 0; j < k; j++ {
		out = append(out, j*(n-1)/(k-1))
	}
	return out
}

// appendSamples 按 stride 间隔采样像素
func appendSamples(dst []color.RGBA, img image.Image, stride int) []color.RGBA {
	b := img.Bounds()
	w := b.Dx()
	total := w * b.Dy()
	for p := 0; p < total; p += stride {
		dst = append(dst, rgbaAt(img, b.Min.X+p%w, b.Min.Y+p/w))
	}
	return dst
}
