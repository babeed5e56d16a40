package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fitsstore-go/internal/dbtest"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/queue"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/fits"
	"fitsstore-go/pkg/storage"
	"fitsstore-go/pkg/tasks"
	"fitsstore-go/pkg/verify"
)

const fourAmps = "'EEV 2037-06-03, left':[1:1024,1:4608]+'EEV 2037-06-03, right':[1025:2048,1:4608]"

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// fakeExtractor 按文件名返回预设的描述符，并记录实际读取到的字节。
type fakeExtractor struct {
	mu    sync.Mutex
	descs map[string]fits.Descriptors
	wcs   []fits.WCS
	err   error
	seen  [][]byte
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (*fits.Descriptors, *fits.Inspection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	f.seen = append(f.seen, b)
	if f.err != nil {
		return nil, nil, f.err
	}
	d := f.descs[string(b[:min(len(b), 8)])]
	return &d, &fits.Inspection{FullText: "SIMPLE  =                    T", WCS: f.wcs}, nil
}

// gmosDesc 返回一个 GMOS-N 描述符；key 是文件内容的前 8 个字节。
func gmosDesc(obstype, ut string) fits.Descriptors {
	t := at(ut)
	return fits.Descriptors{
		Telescope: "Gemini-North", Instrument: "GMOS-N",
		ObservationType: obstype, ObservationClass: "science", FocalPlaneMask: "Imaging",
		DataLabel: "GN-2020A-Q-1-1-001", ProgramID: "GN-2020A-Q-1",
		UTDateTime: &t, DetectorXBin: 2, DetectorYBin: 2,
		DetectorReadSpeedSetting: "slow", DetectorGainSetting: "low",
		AmpReadArea: fourAmps, DetectorROISetting: "Full Frame",
		QAState: "Pass", Reduction: "RAW",
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []tasks.ArchiveEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev tasks.ArchiveEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeNotifier struct{ subjects []string }

func (n *fakeNotifier) Notify(_ context.Context, subject, _ string) error {
	n.subjects = append(n.subjects, subject)
	return nil
}

type fakeVerifier struct{}

func (fakeVerifier) Fitsverify(context.Context, string) (*verify.FitsverifyReport, error) {
	return &verify.FitsverifyReport{Errors: 2, Text: "2 errors"}, nil
}

func (fakeVerifier) MDValidate(context.Context, string) (*verify.MDReport, error) {
	return nil, errkind.Transient.New("validator timed out")
}

type ingestEnv struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	root     string
	ex       *fakeExtractor
	events   *fakePublisher
	notifier *fakeNotifier
	w        *IngestWorker
	q        *queue.Ingest
}

func newIngestEnv(t *testing.T) *ingestEnv {
	db := dbtest.Open(t)
	root := t.TempDir()
	env := &ingestEnv{
		t: t, ctx: context.Background(), db: db, root: root,
		ex:       &fakeExtractor{descs: map[string]fits.Descriptors{}},
		events:   &fakePublisher{},
		notifier: &fakeNotifier{},
		q:        queue.NewIngest(db),
	}
	env.w = NewIngestWorker(IngestDeps{
		DB: db, Store: storage.NewLocalStore(root), Extractor: env.ex,
		Events: env.events, Notifier: env.notifier,
	}, IngestConfig{
		DeferSeconds:       4,
		ExportDestinations: []string{"peer.example.org"},
		MakePreviews:       true,
		PopulateCalCache:   true,
		StagingDir:         t.TempDir(),
	})
	return env
}

func (e *ingestEnv) write(name string, content []byte, mtime time.Time) {
	e.t.Helper()
	p := filepath.Join(e.root, name)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(e.t, os.WriteFile(p, content, 0o644))
	require.NoError(e.t, os.Chtimes(p, mtime, mtime))
}

func (e *ingestEnv) enqueue(name string, force bool) uint {
	e.t.Helper()
	id, err := e.q.Enqueue(e.ctx, &model.IngestQueue{Filename: name, Force: force, QueueFields: model.QueueFields{SortKey: name}})
	require.NoError(e.t, err)
	return id
}

func (e *ingestEnv) step() {
	e.t.Helper()
	worked, err := e.w.Step(e.ctx)
	require.NoError(e.t, err)
	require.True(e.t, worked)
}

func (e *ingestEnv) count(m interface{}) int64 {
	e.t.Helper()
	var n int64
	require.NoError(e.t, e.db.Model(m).Count(&n).Error)
	return n
}

func (e *ingestEnv) diskfiles() []model.DiskFile {
	e.t.Helper()
	var dfs []model.DiskFile
	require.NoError(e.t, e.db.Order("id").Find(&dfs).Error)
	return dfs
}

const s1 = "N20200115S0001.fits"

func TestIngestFirstIdempotentAndSupersede(t *testing.T) {
	env := newIngestEnv(t)
	v1 := []byte("SIMPLE-1 first version")
	env.ex.descs["SIMPLE-1"] = gmosDesc("OBJECT", "2020-01-15T09:55:00")
	env.write(s1, v1, at("2020-01-15T10:00:00"))

	// 首次 ingest
	env.enqueue(s1, false)
	env.step()

	assert.Equal(t, int64(1), env.count(&model.File{}))
	dfs := env.diskfiles()
	require.Len(t, dfs, 1)
	first := dfs[0]
	assert.True(t, first.Present)
	assert.True(t, first.Canonical)
	assert.False(t, first.Gzipped)
	assert.Equal(t, md5hex(v1), first.FileMD5)
	assert.Equal(t, first.FileMD5, first.DataMD5)
	assert.Equal(t, int64(len(v1)), first.DataSize)

	var h model.Header
	require.NoError(t, env.db.Where("diskfile_id = ?", first.ID).First(&h).Error)
	require.NotNil(t, h.UTDateTime)
	assert.True(t, h.UTDateTime.Equal(at("2020-01-15T09:55:00")))
	require.NotNil(t, h.UTDateTimeSecs)
	assert.Equal(t, model.UTSecs(at("2020-01-15T09:55:00")), *h.UTDateTimeSecs)
	var g model.Gmos
	require.NoError(t, env.db.Where("header_id = ?", h.ID).First(&g).Error)
	assert.Equal(t, "slow", g.ReadSpeedSetting)
	assert.Equal(t, int64(1), env.count(&model.FullTextHeader{}))

	assert.Zero(t, env.count(&model.IngestQueue{}))
	var ex model.ExportQueue
	require.NoError(t, env.db.First(&ex).Error)
	assert.Equal(t, "peer.example.org", ex.Destination)
	assert.Equal(t, s1, ex.Filename)
	assert.Equal(t, int64(1), env.count(&model.PreviewQueue{}))
	var cq model.CalCacheQueue
	require.NoError(t, env.db.First(&cq).Error)
	assert.Equal(t, h.ID, cq.ObsHID)
	assert.Equal(t, "2020-01-15T09:55:00", cq.SortKey)
	assert.Equal(t, []string{tasks.EventDiskFileAdded}, env.events.types())

	// 未变化的再次 ingest 不产生新行
	env.enqueue(s1, false)
	env.step()
	dfs = env.diskfiles()
	require.Len(t, dfs, 1)
	assert.Equal(t, first.ID, dfs[0].ID)
	assert.Equal(t, int64(1), env.count(&model.Header{}))
	assert.Equal(t, int64(1), env.count(&model.ExportQueue{}))
	assert.Zero(t, env.count(&model.IngestQueue{}))

	// 覆盖为新内容后替换旧版本
	v2 := []byte("SIMPLE-2 second version, longer")
	env.ex.descs["SIMPLE-2"] = gmosDesc("OBJECT", "2020-01-15T09:55:00")
	env.write(s1, v2, at("2020-01-16T10:00:00"))
	env.enqueue(s1, false)
	env.step()

	dfs = env.diskfiles()
	require.Len(t, dfs, 2)
	assert.Equal(t, first.ID, dfs[0].ID)
	assert.False(t, dfs[0].Present)
	assert.False(t, dfs[0].Canonical)
	assert.True(t, dfs[1].Present)
	assert.True(t, dfs[1].Canonical)
	assert.Equal(t, md5hex(v2), dfs[1].FileMD5)
	assert.True(t, dfs[1].LastMod.Equal(at("2020-01-16T10:00:00")))

	var hs []model.Header
	require.NoError(t, env.db.Order("id").Find(&hs).Error)
	require.Len(t, hs, 2)
	assert.Equal(t, dfs[0].ID, hs[0].DiskFileID)
	assert.Equal(t, dfs[1].ID, hs[1].DiskFileID)
	assert.Equal(t, []string{tasks.EventDiskFileAdded, tasks.EventDiskFileSuperseded, tasks.EventDiskFileAdded}, env.events.types())
}

func TestIngestSameLastmodNotRehashedUnlessForced(t *testing.T) {
	env := newIngestEnv(t)
	mtime := at("2020-01-15T10:00:00")
	env.write(s1, []byte("SIMPLE-1 a"), mtime)
	env.enqueue(s1, false)
	env.step()

	// 相同 lastmod 的不同字节：不强制时视为未变化
	env.write(s1, []byte("SIMPLE-1 b"), mtime)
	env.enqueue(s1, false)
	env.step()
	require.Len(t, env.diskfiles(), 1)

	env.enqueue(s1, true)
	env.step()
	dfs := env.diskfiles()
	require.Len(t, dfs, 2)
	assert.Equal(t, md5hex([]byte("SIMPLE-1 b")), dfs[1].FileMD5)
}

func TestIngestForceMD5DetectsChangeWithSameLastmod(t *testing.T) {
	env := newIngestEnv(t)
	mtime := at("2020-01-15T10:00:00")
	env.write(s1, []byte("SIMPLE-1 a"), mtime)
	env.enqueue(s1, false)
	env.step()

	env.write(s1, []byte("SIMPLE-1 b"), mtime)
	_, err := env.q.Enqueue(env.ctx, &model.IngestQueue{Filename: s1, ForceMD5: true})
	require.NoError(t, err)
	env.step()
	require.Len(t, env.diskfiles(), 2)
}

func TestIngestGzippedComputesDataHash(t *testing.T) {
	env := newIngestEnv(t)
	raw := []byte("SIMPLE-1 gzipped content")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	name := s1 + ".gz"
	env.write(name, buf.Bytes(), at("2020-01-15T10:00:00"))
	env.enqueue(name, false)
	env.step()

	dfs := env.diskfiles()
	require.Len(t, dfs, 1)
	assert.True(t, dfs[0].Gzipped)
	assert.Equal(t, md5hex(buf.Bytes()), dfs[0].FileMD5)
	assert.Equal(t, md5hex(raw), dfs[0].DataMD5)
	assert.Equal(t, int64(len(raw)), dfs[0].DataSize)

	var f model.File
	require.NoError(t, env.db.First(&f).Error)
	assert.Equal(t, s1, f.Name)

	// 提取器读到的是解压后的缓存
	require.Len(t, env.ex.seen, 1)
	assert.Equal(t, raw, env.ex.seen[0])
}

func TestIngestDefersRecentlyModifiedFile(t *testing.T) {
	env := newIngestEnv(t)
	env.write(s1, []byte("SIMPLE-1"), time.Now())
	id := env.enqueue(s1, false)
	env.step()

	row, err := env.q.Get(env.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.InProgress)
	assert.True(t, row.After.After(time.Now().Add(2*time.Second)))
	assert.Zero(t, env.count(&model.DiskFile{}))

	n, err := env.q.Length(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestMissingFileMarksNotPresent(t *testing.T) {
	env := newIngestEnv(t)
	env.write(s1, []byte("SIMPLE-1"), at("2020-01-15T10:00:00"))
	env.enqueue(s1, false)
	env.step()

	require.NoError(t, os.Remove(filepath.Join(env.root, s1)))
	env.enqueue(s1, false)
	env.step()

	dfs := env.diskfiles()
	require.Len(t, dfs, 1)
	assert.False(t, dfs[0].Present)
	assert.Zero(t, env.count(&model.IngestQueue{}))

	// 从未登记过的文件也不会出错
	env.enqueue("N20200115S9999.fits", false)
	env.step()
	assert.Equal(t, int64(1), env.count(&model.File{}))
}

func TestIngestFailureLeavesRowInProgress(t *testing.T) {
	env := newIngestEnv(t)
	env.ex.err = errors.New("disk read error")
	env.write(s1, []byte("SIMPLE-1"), at("2020-01-15T10:00:00"))
	id := env.enqueue(s1, false)
	env.step()

	row, err := env.q.Get(env.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.InProgress)
	assert.True(t, row.Failed)
	assert.NotNil(t, row.LastFailed)
	assert.Contains(t, row.Error, "disk read error")
	assert.Zero(t, env.count(&model.DiskFile{}))
	assert.Zero(t, env.count(&model.ExportQueue{}))
}

func TestIngestCorruptHeaderStillRegistersFile(t *testing.T) {
	env := newIngestEnv(t)
	env.ex.err = errkind.Corrupt.New("bad card")
	env.write(s1, []byte("garbage"), at("2020-01-15T10:00:00"))
	env.enqueue(s1, false)
	env.step()

	dfs := env.diskfiles()
	require.Len(t, dfs, 1)
	var h model.Header
	require.NoError(t, env.db.Where("diskfile_id = ?", dfs[0].ID).First(&h).Error)
	assert.Empty(t, h.Instrument)
	assert.Nil(t, h.UTDateTime)
	var rep model.DiskFileReport
	require.NoError(t, env.db.Where("diskfile_id = ?", dfs[0].ID).First(&rep).Error)
	assert.Contains(t, rep.FVReport, "bad card")
}

func TestIngestCorruptGzipStillRegistersFile(t *testing.T) {
	env := newIngestEnv(t)
	payload := []byte("this is not a gzip stream")
	name := s1 + ".gz"
	env.write(name, payload, at("2020-01-15T10:00:00"))
	env.enqueue(name, false)
	env.step()

	dfs := env.diskfiles()
	require.Len(t, dfs, 1)
	assert.True(t, dfs[0].Present)
	assert.Equal(t, md5hex(payload), dfs[0].FileMD5)
	assert.Equal(t, int64(len(payload)), dfs[0].FileSize)
	assert.Empty(t, dfs[0].DataMD5)
	assert.Empty(t, env.ex.seen)

	var rep model.DiskFileReport
	require.NoError(t, env.db.Where("diskfile_id = ?", dfs[0].ID).First(&rep).Error)
	assert.Contains(t, rep.FVReport, "gzip")
	assert.Zero(t, env.count(&model.IngestQueue{}))
}

func TestIngestConflictStopsAndNotifies(t *testing.T) {
	env := newIngestEnv(t)
	env.write(s1, []byte("SIMPLE-1"), at("2020-01-15T10:00:00"))
	f := &model.File{Name: s1}
	require.NoError(t, env.db.Create(f).Error)
	for i := 0; i < 2; i++ {
		df := &model.DiskFile{FileID: f.ID, Filename: s1, Present: true, FileMD5: "x", DataMD5: "x",
			LastMod: at("2020-01-15T10:00:00"), EntryTime: time.Now()}
		require.NoError(t, env.db.Create(df).Error)
	}
	env.enqueue(s1, false)

	worked, err := env.w.Step(env.ctx)
	assert.True(t, worked)
	require.Error(t, err)
	assert.True(t, errkind.Conflict.Has(err))
	require.Len(t, env.notifier.subjects, 1)
	assert.Contains(t, env.notifier.subjects[0], s1)
}

func TestIngestStoresVerifierReports(t *testing.T) {
	env := newIngestEnv(t)
	env.w.verifier = fakeVerifier{}
	env.write(s1, []byte("SIMPLE-1"), at("2020-01-15T10:00:00"))
	env.enqueue(s1, false)
	env.step()

	dfs := env.diskfiles()
	require.Len(t, dfs, 1)
	require.NotNil(t, dfs[0].FVErrors)
	assert.Equal(t, 2, *dfs[0].FVErrors)
	assert.Nil(t, dfs[0].MDReady)
	var rep model.DiskFileReport
	require.NoError(t, env.db.Where("diskfile_id = ?", dfs[0].ID).First(&rep).Error)
	assert.Equal(t, "2 errors", rep.FVReport)
}

func TestIngestFootprintsFlagPhotometricStandards(t *testing.T) {
	env := newIngestEnv(t)
	env.ex.wcs = []fits.WCS{{
		Extension: "SCI", NAxis1: 101, NAxis2: 101,
		CType1: "RA---TAN", CType2: "DEC--TAN",
		CRVal1: 10, CRVal2: 20, CRPix1: 51, CRPix2: 51,
		CD: [2][2]float64{{-0.0001, 0}, {0, 0.0001}},
	}}
	inside := &model.PhotStandard{Name: "inside", RA: 10, Dec: 20}
	outside := &model.PhotStandard{Name: "outside", RA: 11, Dec: 20}
	require.NoError(t, env.db.Create(inside).Error)
	require.NoError(t, env.db.Create(outside).Error)

	env.write(s1, []byte("SIMPLE-1"), at("2020-01-15T10:00:00"))
	env.enqueue(s1, false)
	env.step()

	var fps []model.Footprint
	require.NoError(t, env.db.Find(&fps).Error)
	require.Len(t, fps, 1)
	assert.Equal(t, "SCI", fps[0].Extension)
	var obs []model.PhotStandardObs
	require.NoError(t, env.db.Find(&obs).Error)
	require.Len(t, obs, 1)
	assert.Equal(t, inside.ID, obs[0].PhotStandardID)
	var h model.Header
	require.NoError(t, env.db.First(&h).Error)
	assert.True(t, h.PhotStandard)
}

func TestIngestEmptyQueue(t *testing.T) {
	env := newIngestEnv(t)
	worked, err := env.w.Step(env.ctx)
	require.NoError(t, err)
	assert.False(t, worked)
}
