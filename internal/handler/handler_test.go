package handler

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fitsstore-go/internal/config"
	"fitsstore-go/internal/dbtest"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/repository"
	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	db     *gorm.DB
	store  *storage.LocalStore
	router *gin.Engine
}

func newTestServer(t *testing.T, uploadCookie string) *testServer {
	db := dbtest.Open(t)
	store := storage.NewLocalStore(t.TempDir())
	headers := repository.NewHeaderRepository(db)
	users := repository.NewUserRepository(db)

	queues := service.NewQueueService(db)
	files := service.NewFileService(headers, 500, 10000)
	access := service.NewAccessController(users, "magic")
	downloads := service.NewDownloadService(files, repository.NewFileRepository(db), headers, access, store, 500)
	uploads := service.NewUploadService(store, queues, "reduced_cals")

	r := gin.New()
	qh := NewQueueHandler(queues)
	r.POST("/ingest_queue", qh.Ingest)
	r.GET("/queuestatus/:queue", qh.Status)
	r.POST("/upload_file/:filename", NewUploadHandler(uploads, uploadCookie).Upload)
	fh := NewFileHandler(files, nil)
	r.GET("/jsonfilelist/*selection", fh.FileList)
	r.GET("/jsonsummary/*selection", fh.Summary)
	dh := NewDownloadHandler(files, downloads)
	r.GET("/download/*selection", dh.Selection)
	r.POST("/download", dh.Files)
	return &testServer{db: db, store: store, router: r}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) addFile(t *testing.T, name, content string, release time.Time) {
	ctx := context.Background()
	require.NoError(t, s.store.Put(ctx, name, strings.NewReader(content), int64(len(content))))
	f := &model.File{Name: name}
	require.NoError(t, s.db.Create(f).Error)
	ut := time.Date(2020, 1, 15, 6, 0, 0, 0, time.UTC)
	df := &model.DiskFile{FileID: f.ID, Filename: name, Present: true, Canonical: true,
		FileMD5: "f", DataMD5: "d", FileSize: int64(len(content)), LastMod: ut, EntryTime: ut}
	require.NoError(t, s.db.Create(df).Error)
	h := &model.Header{DiskFileID: df.ID, Instrument: "GMOS-N", ObservationType: "OBJECT",
		ObservationClass: "science", ProgramID: "GN-2020A-Q-1", Release: &release}
	h.SetUTDateTime(&ut)
	require.NoError(t, s.db.Create(h).Error)
}

func TestIngestQueueEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(httptest.NewRequest(http.MethodPost, "/ingest_queue",
		strings.NewReader(`{"filename":"N20200115S0001.fits","path":"/20200115/"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotZero(t, resp.Data.ID)

	w = s.do(httptest.NewRequest(http.MethodPost, "/ingest_queue", strings.NewReader(`{"filename":"../etc/passwd"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(httptest.NewRequest(http.MethodPost, "/ingest_queue", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/queuestatus/ingest", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"length":1`)
	assert.Contains(t, w.Body.String(), "N20200115S0001.fits")

	w = s.do(httptest.NewRequest(http.MethodGet, "/queuestatus/bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRequiresCookie(t *testing.T) {
	s := newTestServer(t, "letmein")

	w := s.do(httptest.NewRequest(http.MethodPost, "/upload_file/N20200115S0002.fits", strings.NewReader("SIMPLE")))
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/upload_file/N20200115S0002.fits", strings.NewReader("SIMPLE"))
	req.AddCookie(&http.Cookie{Name: config.UploadCookieName, Value: "letmein"})
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var echo []service.UploadResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echo))
	require.Len(t, echo, 1)
	assert.Equal(t, "N20200115S0002.fits", echo[0].Filename)
	assert.Equal(t, int64(6), echo[0].Size)
	assert.Equal(t, "e5564829e2f85f6a6873a9d5c4f26d09", echo[0].MD5)

	_, err := s.store.Stat(context.Background(), "N20200115S0002.fits")
	assert.NoError(t, err)
}

func TestJSONFileList(t *testing.T) {
	s := newTestServer(t, "")
	s.addFile(t, "N20200115S0001.fits", "data", time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))

	w := s.do(httptest.NewRequest(http.MethodGet, "/jsonfilelist/present/filename=N20200115S0001.fits", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []service.FileEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "d", list[0].DataMD5)
	assert.Equal(t, time.Date(2020, 1, 15, 6, 0, 0, 0, time.UTC), list[0].LastMod.Time())
	assert.Contains(t, w.Body.String(), `"lastmod":"2020-01-15 06:00:00"`)

	w = s.do(httptest.NewRequest(http.MethodGet, "/jsonfilelist/nonsense-token", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJSONSummaryUsesNaiveUTTimestamps(t *testing.T) {
	s := newTestServer(t, "")
	s.addFile(t, "N20200115S0001.fits", "data", time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))

	w := s.do(httptest.NewRequest(http.MethodGet, "/jsonsummary/present/filename=N20200115S0001.fits", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2020-01-15 06:00:00", rows[0]["ut_datetime"])
	assert.Equal(t, "2020-01-15 06:00:00", rows[0]["lastmod"])
	assert.Equal(t, "GMOS-N", rows[0]["instrument"])
	assert.Equal(t, "N20200115S0001.fits", rows[0]["filename"])
}

func tarNames(t *testing.T, body []byte) []string {
	var names []string
	tr := tar.NewReader(bytes.NewReader(body))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
}

func TestDownloadHonoursMagicCookie(t *testing.T) {
	s := newTestServer(t, "")
	s.addFile(t, "N20200115S0001.fits", "data", time.Now().AddDate(1, 0, 0))

	w := s.do(httptest.NewRequest(http.MethodGet, "/download/filename=N20200115S0001.fits", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/tar", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=download.tar", w.Header().Get("Content-Disposition"))
	assert.NotContains(t, tarNames(t, w.Body.Bytes()), "N20200115S0001.fits")

	req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader("files=N20200115S0001.fits"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: config.DownloadCookieName, Value: "magic"})
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	names := tarNames(t, w.Body.Bytes())
	assert.Contains(t, names, "N20200115S0001.fits")
	assert.Contains(t, names, "md5sums.txt")
	assert.Contains(t, names, "README.txt")
}
