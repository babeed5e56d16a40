package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsstore-go/internal/dbtest"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/queue"
	"fitsstore-go/pkg/storage"
)

// minimalFITS 生成一个只有主 HDU 的 8 位 w×h 图像。
func minimalFITS(w, h int) []byte {
	var hdr bytes.Buffer
	card := func(s string) { hdr.WriteString(fmt.Sprintf("%-80s", s)) }
	card(fmt.Sprintf("%-8s= %20s", "SIMPLE", "T"))
	card(fmt.Sprintf("%-8s= %20d", "BITPIX", 8))
	card(fmt.Sprintf("%-8s= %20d", "NAXIS", 2))
	card(fmt.Sprintf("%-8s= %20d", "NAXIS1", w))
	card(fmt.Sprintf("%-8s= %20d", "NAXIS2", h))
	card("END")
	out := hdr.Bytes()
	out = append(out, bytes.Repeat([]byte(" "), 2880-len(out))...)

	data := make([]byte, 2880)
	for i := 0; i < w*h; i++ {
		data[i] = byte(i * 7)
	}
	return append(out, data...)
}

func newPreviewFixture(t *testing.T, content []byte) (*PreviewWorker, *queue.Preview, *model.DiskFile, string) {
	db := dbtest.Open(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, s1), content, 0o644))
	f := &model.File{Name: s1}
	require.NoError(t, db.Create(f).Error)
	df := &model.DiskFile{
		FileID: f.ID, Filename: s1, Present: true, Canonical: true,
		FileMD5: md5hex(content), FileSize: int64(len(content)),
		DataMD5: md5hex(content), DataSize: int64(len(content)),
		LastMod: at("2020-01-15T10:00:00"), EntryTime: time.Now(),
	}
	require.NoError(t, db.Create(df).Error)
	w := NewPreviewWorker(db, storage.NewLocalStore(root), "previews", t.TempDir(), nil)
	return w, queue.NewPreview(db), df, root
}

func TestPreviewName(t *testing.T) {
	assert.Equal(t, "previews/N20200115S0001.jpg", PreviewName("previews", "N20200115S0001.fits.gz"))
	assert.Equal(t, "N20200115S0001.jpg", PreviewName("", "N20200115S0001.fits"))
}

func TestPreviewRendersAndRecords(t *testing.T) {
	ctx := context.Background()
	w, q, df, root := newPreviewFixture(t, minimalFITS(8, 6))
	_, err := q.Enqueue(ctx, &model.PreviewQueue{DiskFileID: df.ID})
	require.NoError(t, err)

	worked, err := w.Step(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	b, err := os.ReadFile(filepath.Join(root, "previews", "N20200115S0001.jpg"))
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())

	p, err := w.files.FindPreview(ctx, df.ID)
	require.NoError(t, err)
	assert.Equal(t, "previews/N20200115S0001.jpg", p.Filename)
	rows, err := q.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// 已有预览时不再生成
	made, err := w.Preview(ctx, &model.PreviewQueue{DiskFileID: df.ID})
	require.NoError(t, err)
	assert.False(t, made)
	made, err = w.Preview(ctx, &model.PreviewQueue{DiskFileID: df.ID, Force: true})
	require.NoError(t, err)
	assert.True(t, made)
}

func TestPreviewSkipsMissingDiskFile(t *testing.T) {
	w, _, _, _ := newPreviewFixture(t, minimalFITS(2, 2))
	made, err := w.Preview(context.Background(), &model.PreviewQueue{DiskFileID: 999})
	require.NoError(t, err)
	assert.False(t, made)
}

func TestPreviewFailureKeepsRow(t *testing.T) {
	ctx := context.Background()
	w, q, df, _ := newPreviewFixture(t, []byte("not a fits file"))
	id, err := q.Enqueue(ctx, &model.PreviewQueue{DiskFileID: df.ID})
	require.NoError(t, err)

	worked, err := w.Step(ctx)
	require.NoError(t, err)
	assert.True(t, worked)
	row, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.InProgress)
	assert.True(t, row.Failed)
	assert.NotEmpty(t, row.Error)
}
