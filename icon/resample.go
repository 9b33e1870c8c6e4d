// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package icon

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// StandardSizes is the resolution set used when deriving frames from a
// single image with no explicit size list.
var StandardSizes = []int{256, 64, 48, 32, 16}

// A Resampler scales an image to exactly width by height pixels.
type Resampler interface {
	Resample(src image.Image, width, height int) image.Image
}

// DrawResampler scales with an x/image/draw interpolator.
type DrawResampler struct {
	Interpolator draw.Interpolator
}

func (r DrawResampler) Resample(src image.Image, width, height int) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	r.Interpolator.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// ResizeResampler scales with github.com/nfnt/resize.
type ResizeResampler struct {
	Function resize.InterpolationFunction
}

func (r ResizeResampler) Resample(src image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), src, r.Function)
}

var (
	CatmullRom Resampler = DrawResampler{Interpolator: draw.CatmullRom}
	Lanczos    Resampler = ResizeResampler{Function: resize.Lanczos3}

	// DefaultResampler is used when none is given.
	DefaultResampler = CatmullRom
)

var resamplers = map[string]Resampler{
	"catmullrom": CatmullRom,
	"lanczos":    Lanczos,
	"bilinear":   DrawResampler{Interpolator: draw.BiLinear},
	"nearest":    DrawResampler{Interpolator: draw.NearestNeighbor},
}

// ResamplerByName looks up a resampler by its lower-case name.
func ResamplerByName(name string) (Resampler, error) {
	if name == "" {
		return DefaultResampler, nil
	}
	r, ok := resamplers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown resampler %q", name)
	}
	return r, nil
}

// DeriveFrames produces one square frame per requested size. The source is
// scaled so its longer side matches the size and centered on a transparent
// canvas; sources already at the requested size are used as is.
func DeriveFrames(src image.Image, sizes []int, r Resampler) (ImageSet, error) {
	if len(sizes) == 0 {
		sizes = StandardSizes
	}
	if r == nil {
		r = DefaultResampler
	}

	b := src.Bounds()
	if b.Empty() {
		return nil, invalid("empty source image")
	}

	set := make(ImageSet, 0, len(sizes))
	seen := make(map[int]bool)
	for _, size := range sizes {
		if size < 1 || size > MaxSize {
			return nil, invalid("frame size %d", size)
		}
		if seen[size] {
			continue
		}
		seen[size] = true

		img := src
		if b.Dx() != size || b.Dy() != size {
			w, h := size, size
			if b.Dx() > b.Dy() {
				h = max(1, b.Dy()*size/b.Dx())
			} else if b.Dy() > b.Dx() {
				w = max(1, b.Dx()*size/b.Dy())
			}
			scaled := r.Resample(src, w, h)

			canvas := image.NewNRGBA(image.Rect(0, 0, size, size))
			at := image.Pt((size-w)/2, (size-h)/2)
			draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(image.Pt(w, h))}, scaled, scaled.Bounds().Min, draw.Src)
			img = canvas
		}

		f, err := FromImage(img)
		if err != nil {
			return nil, err
		}
		set = append(set, f)
	}
	return set, nil
}

// Decode reads a PNG, BMP, JPEG or GIF raster.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, invalid("%v", err)
	}
	return img, nil
}

// Read turns icon source data into an image set. ICO containers are used
// as they are. Rasters are used at native size when sizes is empty, and
// resampled into one frame per size otherwise.
func Read(data []byte, sizes []int, r Resampler) (ImageSet, error) {
	if IsICO(data) {
		return ParseICO(data)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if len(sizes) == 0 {
		f, err := FromImage(img)
		if err != nil {
			return nil, err
		}
		return ImageSet{f}, nil
	}
	return DeriveFrames(img, sizes, r)
}
