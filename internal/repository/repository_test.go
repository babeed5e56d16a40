package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fitsstore-go/internal/dbtest"
	"fitsstore-go/internal/model"
)

func seedDiskFile(t *testing.T, db *gorm.DB, name string, present bool) *model.DiskFile {
	t.Helper()
	ctx := context.Background()
	files := NewFileRepository(db)
	f, err := files.FindOrCreateFile(ctx, name)
	require.NoError(t, err)
	df := &model.DiskFile{
		FileID: f.ID, Filename: name, Present: present, Canonical: present,
		FileMD5: "d41d8cd98f00b204e9800998ecf8427e", DataMD5: "d41d8cd98f00b204e9800998ecf8427e",
		LastMod: time.Date(2020, 1, 15, 10, 0, 0, 0, time.UTC), EntryTime: time.Now().UTC(),
	}
	require.NoError(t, files.CreateDiskFile(ctx, df))
	return df
}

func TestFindOrCreateFileIsStable(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(dbtest.Open(t))

	a, err := repo.FindOrCreateFile(ctx, "N20200115S0001.fits")
	require.NoError(t, err)
	b, err := repo.FindOrCreateFile(ctx, "N20200115S0001.fits")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestFindPresentByFilenameMatchesGzippedName(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	df := seedDiskFile(t, db, "N20200115S0001.fits", true)
	require.NoError(t, db.Model(df).Update("filename", "N20200115S0001.fits.gz").Error)

	repo := NewFileRepository(db)
	got, err := repo.FindPresentByFilename(ctx, "N20200115S0001.fits")
	require.NoError(t, err)
	assert.Equal(t, df.ID, got.ID)

	got, err = repo.FindPresentByFilename(ctx, "N20200115S0001.fits.gz")
	require.NoError(t, err)
	assert.Equal(t, df.ID, got.ID)

	require.NoError(t, repo.MarkNotPresent(ctx, df.ID))
	_, err = repo.FindPresentByFilename(ctx, "N20200115S0001.fits")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestHeaderCreateWithInstrumentRow(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	df := seedDiskFile(t, db, "N20200501S0001.fits", true)

	repo := NewHeaderRepository(db)
	h := &model.Header{DiskFileID: df.ID, Instrument: "GMOS-N", ObservationType: "BIAS"}
	inst := &model.Gmos{DetectorXBin: 2, DetectorYBin: 2, ReadSpeedSetting: "slow"}
	require.NoError(t, repo.Create(ctx, h, inst))
	assert.Equal(t, h.ID, inst.HeaderID)

	row, err := repo.InstrumentRow(ctx, h)
	require.NoError(t, err)
	gmos, ok := row.(*model.Gmos)
	require.True(t, ok)
	assert.Equal(t, 2, gmos.DetectorXBin)
	assert.Equal(t, "slow", gmos.ReadSpeedSetting)

	other := &model.Header{DiskFileID: df.ID, Instrument: "TReCS"}
	require.NoError(t, repo.Create(ctx, other, nil))
	row, err = repo.InstrumentRow(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestHeaderFindByIDsKeepsOrder(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	df := seedDiskFile(t, db, "N20200501S0002.fits", true)
	repo := NewHeaderRepository(db)

	var ids []uint
	for i := 0; i < 3; i++ {
		h := &model.Header{DiskFileID: df.ID, Instrument: "NIRI"}
		require.NoError(t, repo.Create(ctx, h, nil))
		ids = append(ids, h.ID)
	}
	want := []uint{ids[2], ids[0], 9999, ids[1]}
	got, err := repo.FindByIDs(ctx, want)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[0], got[1].ID)
	assert.Equal(t, ids[1], got[2].ID)
	assert.NotNil(t, got[0].DiskFile)
}

func TestHeaderSelectOnlyPresent(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := NewHeaderRepository(db)
	present := seedDiskFile(t, db, "a.fits", true)
	gone := seedDiskFile(t, db, "b.fits", false)
	require.NoError(t, repo.Create(ctx, &model.Header{DiskFileID: present.ID, Instrument: "F2"}, nil))
	require.NoError(t, repo.Create(ctx, &model.Header{DiskFileID: gone.ID, Instrument: "F2"}, nil))

	byInstrument := func(db *gorm.DB) *gorm.DB { return db.Where("header.instrument = ?", "F2") }
	hs, err := repo.Select(ctx, 10, byInstrument)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, present.ID, hs[0].DiskFileID)

	n, err := repo.Count(ctx, byInstrument)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCalCacheReplaceKeepsRanksContiguous(t *testing.T) {
	ctx := context.Background()
	repo := NewCalCacheRepository(dbtest.Open(t))

	require.NoError(t, repo.Replace(ctx, 1, map[string][]uint{"bias": {10, 11, 12}, "flat": {20}}))
	require.NoError(t, repo.Replace(ctx, 1, map[string][]uint{"bias": {13, 10}}))

	rows, err := repo.ByCalType(ctx, 1, "bias")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, row := range rows {
		assert.Equal(t, i, row.Rank)
	}
	assert.Equal(t, uint(13), rows[0].CalHID)

	ids, err := repo.Associated(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{13, 10, 20}, ids)

	has, err := repo.Has(ctx, 2)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCalCacheAssociatedDeduplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewCalCacheRepository(dbtest.Open(t))
	require.NoError(t, repo.Replace(ctx, 5, map[string][]uint{"bias": {7, 8}, "processed_bias": {8}}))
	ids, err := repo.Associated(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 8}, ids)
}

func TestUserPrograms(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(dbtest.Open(t))
	u := &model.User{Username: "obs", Password: "x"}
	require.NoError(t, repo.Create(ctx, u))

	require.NoError(t, repo.SetPrograms(ctx, u.ID, []string{"GN-2020A-Q-1", "GS-2020A-Q-2"}))
	ok, err := repo.HasProgram(ctx, u.ID, "GN-2020A-Q-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.SetPrograms(ctx, u.ID, []string{"GS-2020A-Q-2"}))
	progs, err := repo.Programs(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"GS-2020A-Q-2"}, progs)
}

func TestPhotStandardsInBoxWrapsRA(t *testing.T) {
	ctx := context.Background()
	repo := NewFootprintRepository(dbtest.Open(t))
	for _, ps := range []model.PhotStandard{
		{Name: "near-zero", RA: 359.5, Dec: 1},
		{Name: "just-past", RA: 0.5, Dec: 1},
		{Name: "far", RA: 180, Dec: 1},
	} {
		ps := ps
		require.NoError(t, repo.CreatePhotStandard(ctx, &ps))
	}
	got, err := repo.PhotStandardsInBox(ctx, 359, 1, 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near-zero", got[0].Name)
	assert.Equal(t, "just-past", got[1].Name)
}
