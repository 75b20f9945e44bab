package encoder

// Config GIF 编码配置
type Config struct {
	Quality      int // 构建调色板时的像素采样步长，越大文件越小、色彩越粗
	PaletteSize  int // 调色板颜色数，上限 256
	SampleFrames int // 构建调色板时均匀抽取的帧数
}

// DefaultConfig 返回默认编码配置
func DefaultConfig() Config {
	return Config{
		Quality:      10,
		PaletteSize:  256,
		SampleFrames: 8,
	}
}

func (c Config) normalize() Config {
	if c.Quality <= 0 {
		c.Quality = 10
	}
	if c.PaletteSize <= 1 || c.PaletteSize > 256 {
		c.PaletteSize = 256
	}
	if c.SampleFrames <= 0 {
		c.SampleFrames = 8
	}
	return c
}
