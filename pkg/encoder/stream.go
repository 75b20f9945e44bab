package encoder

import (
	"compress/lzw"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"
)

// streamWriter 逐帧写出 GIF89a，不在内存中保留整段动画
type streamWriter struct {
	w         io.Writer
	width     int
	height    int
	litWidth  int
	tableSize int
	buf       [16]byte
}

func newStreamWriter(w io.Writer, width, height int, palette color.Palette) (*streamWriter, error) {
	if len(palette) > 256 {
		return nil, errors.New("调色板超过 256 色")
	}

	// 全局颜色表大小必须是 2 的幂
	bits := 1
	for 1<<bits < len(palette) {
		bits++
	}
	sw := &streamWriter{
		w:         w,
		width:     width,
		height:    height,
		litWidth:  max(bits, 2),
		tableSize: 1 << bits,
	}

	if _, err := io.WriteString(w, "GIF89a"); err != nil {
		return nil, err
	}

	// 逻辑屏幕描述符
	b := sw.buf[:7]
	binary.LittleEndian.PutUint16(b[0:2], uint16(width))
	binary.LittleEndian.PutUint16(b[2:4], uint16(height))
	b[4] = 0x80 | 0x70 | byte(bits-1)
	b[5] = 0
	b[6] = 0
	if _, err := w.Write(b); err != nil {
		return nil, err
	}

	table := make([]byte, 3*sw.tableSize)
	for i, c := range palette {
		r, g, bl, _ := c.RGBA()
		table[3*i+0] = byte(r >> 8)
		table[3*i+1] = byte(g >> 8)
		table[3*i+2] = byte(bl >> 8)
	}
	if _, err := w.Write(table); err != nil {
		return nil, err
	}

	// NETSCAPE2.0 扩展，循环次数 0 表示无限循环
	loop := []byte{0x21, 0xff, 0x0b}
	loop = append(loop, "NETSCAPE2.0"...)
	loop = append(loop, 0x03, 0x01, 0x00, 0x00, 0x00)
	if _, err := w.Write(loop); err != nil {
		return nil, err
	}
	return sw, nil
}

// writeFrame 写出一帧，delay 单位为 1/100 秒
func (sw *streamWriter) writeFrame(img *image.Paletted, delay int) error {
	// 图形控制扩展
	b := sw.buf[:8]
	b[0], b[1], b[2] = 0x21, 0xf9, 0x04
	b[3] = 0x04 // 不处置，保留本帧
	binary.LittleEndian.PutUint16(b[4:6], uint16(delay))
	b[6], b[7] = 0, 0
	if _, err := sw.w.Write(b); err != nil {
		return err
	}

	// 图像描述符，使用全局颜色表
	b = sw.buf[:11]
	b[0] = 0x2c
	binary.LittleEndian.PutUint16(b[1:3], 0)
	binary.LittleEndian.PutUint16(b[3:5], 0)
	binary.LittleEndian.PutUint16(b[5:7], uint16(sw.width))
	binary.LittleEndian.PutUint16(b[7:9], uint16(sw.height))
	b[9] = 0x00
	b[10] = byte(sw.litWidth)
	if _, err := sw.w.Write(b); err != nil {
		return err
	}

	bw := &blockWriter{w: sw.w}
	lw := lzw.NewWriter(bw, lzw.LSB, sw.litWidth)
	for y := 0; y < sw.height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+sw.width]
		if _, err := lw.Write(row); err != nil {
			lw.Close()
			return err
		}
	}
	if err := lw.Close(); err != nil {
		return err
	}
	return bw.close()
}

// close 写出结束符
func (sw *streamWriter) close() error {
	_, err := sw.w.Write([]byte{0x3b})
	return err
}

// blockWriter 将数据切分为不超过 255 字节的子块
type blockWriter struct {
	w   io.Writer
	buf [256]byte
	n   int
	err error
}

func (b *blockWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if b.err != nil {
			return written, b.err
		}
		c := copy(b.buf[1+b.n:], p)
		b.n += c
		written += c
		p = p[c:]
		if b.n == 255 {
			b.flush()
		}
	}
	return written, b.err
}

func (b *blockWriter) flush() {
	if b.n == 0 || b.err != nil {
		return
	}
	b.buf[0] = byte(b.n)
	_, b.err = b.w.Write(b.buf[:1+b.n])
	b.n = 0
}

// close 刷新剩余数据并写出块结束符
func (b *blockWriter) close() error {
	b.flush()
	if b.err != nil {
		return b.err
	}
	_, err := b.w.Write([]byte{0x00})
	return err
}
