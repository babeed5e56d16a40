package fits

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"fitsstore-go/pkg/errkind"
)

// Inspection 是提取过程中得到的非描述符信息。
type Inspection struct {
	// FullText 是所有 HDU 的卡片文本，逐 HDU 以分隔行拼接。
	FullText string
	WCS      []WCS
}

// Extractor 打开本地 FITS 文件并返回描述符。
type Extractor interface {
	Extract(ctx context.Context, localPath string) (*Descriptors, *Inspection, error)
}

// FitsioExtractor 是基于 astrogo/fitsio 的实现。
type FitsioExtractor struct{}

// NewExtractor 创建默认提取器。
func NewExtractor() *FitsioExtractor {
	return &FitsioExtractor{}
}

// keywordsOf 把 fitsio 头信息转换为 Keywords。
func keywordsOf(h *fitsio.Header) *Keywords {
	k := NewKeywords()
	for _, key := range h.Keys() {
		card := h.Get(key)
		if card == nil {
			continue
		}
		k.Set(card.Name, card.Value, card.Comment)
	}
	return k
}

// Extract 解析失败返回 errkind.Corrupt。缺失关键字不报错，对应描述符保持缺失。
func (e *FitsioExtractor) Extract(ctx context.Context, localPath string) (*Descriptors, *Inspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	ff, err := fitsio.Open(f)
	if err != nil {
		return nil, nil, errkind.Corrupt.New("open %s: %v", localPath, err)
	}
	defer ff.Close()

	var (
		primary *Keywords
		exts    []*Keywords
		wcs     []WCS
		text    strings.Builder
	)
	for i, hdu := range ff.HDUs() {
		k := keywordsOf(hdu.Header())
		name := hdu.Name()
		if i == 0 {
			primary = k
			name = "PHU"
		} else {
			exts = append(exts, k)
			if name == "" {
				name = fmt.Sprintf("%d", i)
			}
			if hdu.Type() == fitsio.IMAGE_HDU {
				if w, ok := WCSFromKeywords(name, k); ok {
					wcs = append(wcs, w)
				}
			}
		}
		fmt.Fprintf(&text, "--- HDU %d: %s ---\n", i, name)
		text.WriteString(k.Text())
	}
	if primary == nil {
		return nil, nil, errkind.Corrupt.New("%s has no HDU", localPath)
	}
	// 单 HDU 图像的 WCS 在主头里
	if len(exts) == 0 {
		if w, ok := WCSFromKeywords("PHU", primary); ok {
			wcs = append(wcs, w)
		}
	}

	d := Derive(primary, exts)
	return d, &Inspection{FullText: text.String(), WCS: wcs}, nil
}
