package selection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsstore-go/internal/dbtest"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
)

var now = time.Date(2020, 1, 20, 15, 30, 0, 0, time.UTC)

func TestParseTokens(t *testing.T) {
	s, err := Parse("/gmos-n/20200115/object/science/Pass/imaging/NotAO/N/progid=GN-2020A-Q-1", now)
	require.NoError(t, err)
	assert.Equal(t, "GMOS-N", s.Instrument)
	assert.Equal(t, "OBJECT", s.ObservationType)
	assert.Equal(t, "science", s.ObservationClass)
	assert.Equal(t, "Pass", s.QAState)
	assert.Equal(t, "North", s.Telescope)
	assert.Equal(t, "GN-2020A-Q-1", s.ProgramID)
	require.NotNil(t, s.Spectroscopy)
	assert.False(t, *s.Spectroscopy)
	require.NotNil(t, s.AdaptiveOptics)
	assert.False(t, *s.AdaptiveOptics)
	require.NotNil(t, s.Start)
	assert.Equal(t, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC), *s.Start)
	assert.Equal(t, time.Date(2020, 1, 16, 0, 0, 0, 0, time.UTC), *s.End)
	assert.False(t, s.Open())
}

func TestParseDateRangeAndToday(t *testing.T) {
	s, err := Parse("20200110-20200112", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC), *s.Start)
	assert.Equal(t, time.Date(2020, 1, 13, 0, 0, 0, 0, time.UTC), *s.End)

	s, err = Parse("today", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 20, 0, 0, 0, 0, time.UTC), *s.Start)
}

func TestParseErrors(t *testing.T) {
	for _, path := range []string{
		"nonsense",
		"20201340",
		"20200112-20200110",
		"20200110/20200111",
		"colour=red",
		"filename=",
	} {
		t.Run(path, func(t *testing.T) {
			_, err := Parse(path, now)
			require.Error(t, err)
			assert.True(t, errkind.Validation.Has(err))
		})
	}
}

func TestOpenSelections(t *testing.T) {
	cases := map[string]bool{
		"":                             true,
		"GMOS-N/BIAS":                  true,
		"present/canonical/Fail":       true,
		"20200115":                     false,
		"filename=N20200115S0001.fits": false,
		"progid=GN-2020A-Q-1":          false,
		"obsid=GN-2020A-Q-1-1":         false,
		"datalabel=GN-2020A-Q-1-1-001": false,
	}
	for path, open := range cases {
		s, err := Parse(path, now)
		require.NoError(t, err, path)
		assert.Equal(t, open, s.Open(), path)
		if open {
			assert.Equal(t, 500, s.Limit(500, 10000))
		} else {
			assert.Equal(t, 10000, s.Limit(500, 10000))
		}
	}
}

func TestScopesFilterHeaders(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	add := func(i int, inst, obstype string, ut time.Time, present bool, qa string) {
		name := fmt.Sprintf("N20200115S%04d.fits", i)
		f := &model.File{Name: name}
		require.NoError(t, db.Create(f).Error)
		df := &model.DiskFile{FileID: f.ID, Filename: name, Present: present, Canonical: present,
			FileMD5: "x", DataMD5: "x", LastMod: ut, EntryTime: ut}
		require.NoError(t, db.Create(df).Error)
		h := &model.Header{DiskFileID: df.ID, Instrument: inst, ObservationType: obstype, QAState: qa, Reduction: "RAW"}
		h.SetUTDateTime(&ut)
		require.NoError(t, db.Create(h).Error)
	}
	day := time.Date(2020, 1, 15, 6, 0, 0, 0, time.UTC)
	add(1, "GMOS-N", "OBJECT", day, true, "Pass")
	add(2, "GMOS-S", "BIAS", day, true, "Fail")
	add(3, "NIRI", "OBJECT", day, true, "Pass")
	add(4, "GMOS-N", "OBJECT", day.AddDate(0, 0, 2), true, "Pass")
	add(5, "GMOS-N", "OBJECT", day, false, "Pass")

	repo := repository.NewHeaderRepository(db)
	count := func(path string) int64 {
		s, err := Parse(path, now)
		require.NoError(t, err)
		n, err := repo.SearchCount(ctx, s.Scopes()...)
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, int64(4), count(""))
	assert.Equal(t, int64(3), count("GMOS"))
	assert.Equal(t, int64(1), count("GMOS-N/20200115"))
	assert.Equal(t, int64(1), count("notpresent"))
	assert.Equal(t, int64(3), count("NotFail"))
	assert.Equal(t, int64(1), count("filename=N20200115S0003.fits.gz"))

	s, err := Parse("GMOS-N/OBJECT", now)
	require.NoError(t, err)
	hs, err := repo.Search(ctx, 0, s.Scopes()...)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.True(t, hs[0].UTDateTime.Before(*hs[1].UTDateTime))
	require.NotNil(t, hs[0].DiskFile)
}

func TestStringAndDescribe(t *testing.T) {
	s, err := Parse("/GMOS-N//20200115/", now)
	require.NoError(t, err)
	assert.Equal(t, "GMOS-N/20200115", s.String())
	assert.Equal(t, []string{"instrument: GMOS-N", "ut date: 2020-01-15 to 2020-01-15"}, s.Describe())

	empty, err := Parse("", now)
	require.NoError(t, err)
	assert.Equal(t, "all present files", empty.String())
}
