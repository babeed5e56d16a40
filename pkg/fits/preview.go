package fits

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
	"sort"

	"github.com/astrogo/fitsio"

	"fitsstore-go/pkg/errkind"
)

// Plane 是一个二维像素阵列，行优先，第 0 行是 FITS 的第一行（图像底部）。
type Plane struct {
	Width, Height int
	Data          []float64
}

// At 返回 (x, y) 处的像素值。
func (p Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}

// ReadPlanes 读取文件中所有二维图像扩展，包括非空的主 HDU。
func ReadPlanes(ctx context.Context, localPath string) ([]Plane, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ff, err := fitsio.Open(f)
	if err != nil {
		return nil, errkind.Corrupt.New("open %s: %v", localPath, err)
	}
	defer ff.Close()

	var planes []Plane
	for _, hdu := range ff.HDUs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, ok := hdu.(fitsio.Image)
		if !ok || hdu.Type() != fitsio.IMAGE_HDU {
			continue
		}
		axes := img.Header().Axes()
		if len(axes) != 2 || axes[0] == 0 || axes[1] == 0 {
			continue
		}
		p, err := readPlane(img, axes[0], axes[1])
		if err != nil {
			return nil, errkind.Corrupt.Wrap(err)
		}
		planes = append(planes, p)
	}
	if len(planes) == 0 {
		return nil, errkind.Corrupt.New("%s has no 2D image data", localPath)
	}
	return planes, nil
}

func readPlane(img fitsio.Image, w, h int) (Plane, error) {
	n := w * h
	out := make([]float64, n)
	switch img.Header().Bitpix() {
	case 8:
		raw := make([]uint8, n)
		if err := img.Read(&raw); err != nil {
			return Plane{}, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return Plane{}, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return Plane{}, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return Plane{}, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return Plane{}, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return Plane{}, err
		}
	}
	k := keywordsOf(img.Header())
	bscale, ok := k.Float("BSCALE")
	if !ok {
		bscale = 1
	}
	bzero, _ := k.Float("BZERO")
	if bscale != 1 || bzero != 0 {
		for i := range out {
			out[i] = out[i]*bscale + bzero
		}
	}
	return Plane{Width: w, Height: h, Data: out}, nil
}

// Mosaic 把各扩展从左到右拼接，高度取最大值，空白处为 NaN。
func Mosaic(planes []Plane) Plane {
	width, height := 0, 0
	for _, p := range planes {
		width += p.Width
		if p.Height > height {
			height = p.Height
		}
	}
	data := make([]float64, width*height)
	for i := range data {
		data[i] = math.NaN()
	}
	x0 := 0
	for _, p := range planes {
		for y := 0; y < p.Height; y++ {
			copy(data[y*width+x0:y*width+x0+p.Width], p.Data[y*p.Width:(y+1)*p.Width])
		}
		x0 += p.Width
	}
	return Plane{Width: width, Height: height, Data: data}
}

// 拉伸使用的分位数。
const (
	lowPercentile  = 0.0025
	highPercentile = 0.9975
)

// Stretch 按分位数线性拉伸到 8 位灰度，并把 FITS 第一行放到图像底部。
func Stretch(p Plane) *image.Gray {
	finite := make([]float64, 0, len(p.Data))
	for _, v := range p.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	if len(finite) == 0 {
		return img
	}
	sort.Float64s(finite)
	lo := finite[int(lowPercentile*float64(len(finite)-1))]
	hi := finite[int(highPercentile*float64(len(finite)-1))]
	span := hi - lo
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			v := p.At(x, y)
			var g uint8
			switch {
			case math.IsNaN(v) || v <= lo:
				g = 0
			case v >= hi || span == 0:
				g = 255
			default:
				g = uint8(math.Round(255 * (v - lo) / span))
			}
			img.SetGray(x, p.Height-1-y, color.Gray{Y: g})
		}
	}
	return img
}

// RenderPreview 读取文件、拼接并拉伸为预览图。
func RenderPreview(ctx context.Context, localPath string) (image.Image, error) {
	planes, err := ReadPlanes(ctx, localPath)
	if err != nil {
		return nil, err
	}
	return Stretch(Mosaic(planes)), nil
}

// EncodeJPEG 以固定质量写出 jpeg。
func EncodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 85})
}
