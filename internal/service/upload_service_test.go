package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsstore-go/internal/dbtest"
	"fitsstore-go/internal/queue"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/storage"
)

func TestUploadStoresEchoesAndEnqueues(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	store := storage.NewLocalStore(t.TempDir())
	svc := NewUploadService(store, NewQueueService(db), "reduced_cals")

	content := "SIMPLE  =                    T"
	res, err := svc.Upload(ctx, "N20200115S0001.fits", strings.NewReader(content), int64(len(content)), false)
	require.NoError(t, err)
	sum := md5.Sum([]byte(content))
	assert.Equal(t, &UploadResult{Filename: "N20200115S0001.fits", Size: int64(len(content)), MD5: hex.EncodeToString(sum[:])}, res)

	rc, err := store.Open(ctx, "N20200115S0001.fits")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	_, err = svc.Upload(ctx, "N20200115S0001_bias.fits", strings.NewReader("cal"), -1, true)
	require.NoError(t, err)
	_, err = store.Stat(ctx, "reduced_cals/N20200115S0001_bias.fits")
	require.NoError(t, err)

	rows, err := queue.NewIngest(db).List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	paths := map[string]string{}
	for _, r := range rows {
		paths[r.Filename] = r.Path
	}
	assert.Equal(t, map[string]string{
		"N20200115S0001.fits":      "",
		"N20200115S0001_bias.fits": "reduced_cals",
	}, paths)
}

func TestUploadRejects(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	store := storage.NewLocalStore(t.TempDir())
	svc := NewUploadService(store, NewQueueService(db), "reduced_cals")

	_, err := svc.Upload(ctx, "../escape.fits", strings.NewReader("x"), 1, false)
	assert.True(t, errkind.Validation.Has(err))

	_, err = svc.Upload(ctx, "short.fits", strings.NewReader("abc"), 10, false)
	assert.True(t, errkind.Validation.Has(err))
	_, err = store.Stat(ctx, "short.fits")
	assert.True(t, errkind.NotFound.Has(err))

	n, err := queue.NewIngest(db).Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
