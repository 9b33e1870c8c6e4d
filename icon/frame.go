// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

// Package icon builds RT_ICON and RT_GROUP_ICON resources.
package icon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

var ErrInvalidIconData = errors.New("icon: invalid icon data")

const (
	MaxSize = 256

	bitmapInfoHeaderSize = 40
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// Frame is one single-resolution icon image as stored in an ICO file or an
// RT_ICON resource: a PNG stream, or a DIB made of a BITMAPINFOHEADER, the
// colour bitmap and the transparency mask.
type Frame struct {
	Width      int
	Height     int
	ColorCount uint8
	Planes     uint16
	BitCount   uint16
	Data       []byte
}

// ImageSet is an ordered set of frames making up one logical icon.
type ImageSet []*Frame

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

func (f *Frame) IsPNG() bool {
	return bytes.HasPrefix(f.Data, pngSignature)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidIconData, fmt.Sprintf(format, args...))
}

// pngHeader returns width, height and bits per pixel from the IHDR chunk.
func pngHeader(data []byte) (int, int, uint16, error) {
	if len(data) < 8+8+13 || string(data[12:16]) != "IHDR" {
		return 0, 0, 0, invalid("PNG frame without IHDR")
	}
	w := int(binary.BigEndian.Uint32(data[16:]))
	h := int(binary.BigEndian.Uint32(data[20:]))
	depth := uint16(data[24])
	channels := map[byte]uint16{0: 1, 2: 3, 3: 1, 4: 2, 6: 4}[data[25]]
	if channels == 0 {
		return 0, 0, 0, invalid("PNG colour type %d", data[25])
	}
	return w, h, depth * channels, nil
}

func dibHeader(data []byte) (*bitmapInfoHeader, error) {
	if len(data) < bitmapInfoHeaderSize {
		return nil, invalid("DIB frame of %d bytes", len(data))
	}
	var hdr bitmapInfoHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return nil, invalid("%v", err)
	}
	if hdr.Size < bitmapInfoHeaderSize || hdr.Size > uint32(len(data)) {
		return nil, invalid("DIB header size %d", hdr.Size)
	}
	return &hdr, nil
}

func stride(width int, bpp uint16) int {
	return (width*int(bpp) + 31) / 32 * 4
}

// Validate checks that the frame data encodes a single image of the
// declared size.
func (f *Frame) Validate() error {
	if f.Width < 1 || f.Width > MaxSize || f.Height < 1 || f.Height > MaxSize {
		return invalid("frame size %dx%d", f.Width, f.Height)
	}

	if f.IsPNG() {
		w, h, _, err := pngHeader(f.Data)
		if err != nil {
			return err
		}
		if w != f.Width || h != f.Height {
			return invalid("PNG frame is %dx%d, declared %dx%d", w, h, f.Width, f.Height)
		}
		return nil
	}

	hdr, err := dibHeader(f.Data)
	if err != nil {
		return err
	}
	if int(hdr.Width) != f.Width || int(hdr.Height) != 2*f.Height {
		return invalid("DIB frame is %dx%d, declared %dx%d", hdr.Width, hdr.Height/2, f.Width, f.Height)
	}
	if hdr.Planes != 1 {
		return invalid("DIB with %d planes", hdr.Planes)
	}

	colors := 0
	switch hdr.BitCount {
	case 1, 4, 8:
		colors = 1 << hdr.BitCount
		if hdr.ClrUsed != 0 && int(hdr.ClrUsed) < colors {
			colors = int(hdr.ClrUsed)
		}
	case 16, 24, 32:
	default:
		return invalid("DIB with %d bits per pixel", hdr.BitCount)
	}

	need := int(hdr.Size) + colors*4 + (stride(f.Width, hdr.BitCount)+stride(f.Width, 1))*f.Height
	if len(f.Data) < need {
		return invalid("DIB frame of %d bytes, need %d", len(f.Data), need)
	}
	return nil
}

// fill derives Planes and BitCount from the image data when the directory
// entry left them zero, as many ICO writers do.
func (f *Frame) fill() {
	if f.Planes != 0 && f.BitCount != 0 {
		return
	}
	if f.IsPNG() {
		if _, _, bpp, err := pngHeader(f.Data); err == nil {
			f.Planes, f.BitCount = 1, bpp
		}
	} else if hdr, err := dibHeader(f.Data); err == nil {
		f.Planes, f.BitCount = hdr.Planes, hdr.BitCount
	}
}

func (s ImageSet) Validate() error {
	if len(s) == 0 {
		return invalid("no frames")
	}
	if len(s) > 0xFFFF {
		return invalid("%d frames", len(s))
	}
	for i, f := range s {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// FromImage encodes a raster as an icon frame at its native size: PNG for
// 256 pixel frames, a 32-bit DIB with mask for smaller ones. Images larger
// than 256 pixels are rejected; see DeriveFrames.
func FromImage(img image.Image) (*Frame, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 1 || h < 1 || w > MaxSize || h > MaxSize {
		return nil, invalid("image is %dx%d, frames are at most %dx%d", w, h, MaxSize, MaxSize)
	}

	if w == MaxSize || h == MaxSize {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return &Frame{Width: w, Height: h, Planes: 1, BitCount: 32, Data: buf.Bytes()}, nil
	}

	src := toNRGBA(img)
	xorStride := stride(w, 32)
	andStride := stride(w, 1)

	var buf bytes.Buffer
	hdr := bitmapInfoHeader{
		Size:      bitmapInfoHeaderSize,
		Width:     int32(w),
		Height:    int32(2 * h),
		Planes:    1,
		BitCount:  32,
		SizeImage: uint32((xorStride + andStride) * h),
	}
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}

	xor := make([]byte, xorStride*h)
	and := make([]byte, andStride*h)
	for y := 0; y < h; y++ {
		// DIB rows are stored bottom-up.
		row := h - 1 - y
		for x := 0; x < w; x++ {
			c := src.NRGBAAt(x, y)
			p := xor[row*xorStride+x*4:]
			p[0], p[1], p[2], p[3] = c.B, c.G, c.R, c.A
			if c.A == 0 {
				and[row*andStride+x/8] |= 0x80 >> (x % 8)
			}
		}
	}
	buf.Write(xor)
	buf.Write(and)

	return &Frame{Width: w, Height: h, Planes: 1, BitCount: 32, Data: buf.Bytes()}, nil
}
