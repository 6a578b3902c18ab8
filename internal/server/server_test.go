package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"geo-correlate/internal/config"
	"geo-correlate/internal/jobs"
	"geo-correlate/internal/parser"
	"geo-correlate/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	return newServer(t).Router()
}

func newServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.OutputDir = filepath.Join(dir, "output")
	cfg.SessionSecret = "test-secret"
	cfg.Timeout = 5 * time.Second

	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, r http.Handler, name, content string) (string, []*http.Cookie) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		FilePath string `json:"filePath"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.FilePath == "" {
		t.Fatalf("upload response %s: %v", w.Body.String(), err)
	}
	return resp.FilePath, w.Result().Cookies()
}

type executeResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
	Set      string `json:"set"`
	Field    string `json:"field"`
	Result   struct {
		Matches []struct {
			Meters float64 `json:"distance_m"`
		} `json:"matches"`
	} `json:"result"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) executeResponse {
	t.Helper()
	var resp executeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return resp
}

func TestExecute_Literal(t *testing.T) {
	r := newTestServer(t)
	w := doJSON(t, r, http.MethodPost, "/execute", map[string]interface{}{
		"manualEntry1": "[[51.5,-0.1]]",
		"manualEntry2": "[[48.85,2.35]]",
		"useCSV1":      false,
		"useCSV2":      "false",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if !strings.HasPrefix(resp.Response, "correlation report\n") || len(resp.Result.Matches) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if d := resp.Result.Matches[0].Meters; math.Abs(d-342400.75) > 0.01 {
		t.Fatalf("distance %v", d)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestExecute_UploadedCSV(t *testing.T) {
	r := newTestServer(t)
	ref, cookies := upload(t, r, "points.csv", "lat,lon,x\n0,0,a\nnope,1,b\n1,1,c\n")

	body := map[string]interface{}{
		"file":          ref,
		"columnIndex1A": 0,
		"columnIndex2A": "1",
		"useCSV1":       true,
		"manualEntry2":  "[[0,0]]",
		"header":        true,
	}
	w := doJSON(t, r, http.MethodPost, "/execute", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if !strings.Contains(resp.Response, "A[1]: nope,1 — NOT_NUMERIC\n") || len(resp.Result.Matches) != 2 {
		t.Fatalf("unexpected report:\n%s", resp.Response)
	}

	// the session remembers the upload when file is omitted
	delete(body, "file")
	body["columnIndex1A"] = "lat"
	body["columnIndex2A"] = "lon"
	if w := doJSON(t, r, http.MethodPost, "/execute", body, cookies...); w.Code != http.StatusOK {
		t.Fatalf("session fallback status %d: %s", w.Code, w.Body.String())
	}
}

func TestExecute_ConfigurationErrors(t *testing.T) {
	r := newTestServer(t)
	ref, _ := upload(t, r, "three.csv", "1,2,3\n4,5,6\n")

	tests := []struct {
		name  string
		body  map[string]interface{}
		set   string
		field string
	}{
		{
			name:  "column out of range",
			body:  map[string]interface{}{"file": ref, "useCSV1": true, "columnIndex1A": 5, "columnIndex2A": 1, "manualEntry2": "[[0,0]]"},
			set:   "A",
			field: "columnIndex1A",
		},
		{
			name:  "bad literal",
			body:  map[string]interface{}{"manualEntry1": "[[0,0]]", "manualEntry2": "[[0,0]"},
			set:   "B",
			field: "manualEntry2",
		},
		{
			name:  "path traversal",
			body:  map[string]interface{}{"file": "../../../etc/passwd", "useCSV1": true, "columnIndex1A": 0, "columnIndex2A": 1, "manualEntry2": "[]"},
			set:   "A",
			field: "file",
		},
		{
			name:  "no file",
			body:  map[string]interface{}{"useCSV2": true, "columnIndex1B": 0, "columnIndex2B": 1, "manualEntry1": "[]"},
			set:   "B",
			field: "file",
		},
		{
			name:  "radius without meters",
			body:  map[string]interface{}{"manualEntry1": "[]", "manualEntry2": "[]", "mode": "radius"},
			field: "meters",
		},
	}
	for _, tt := range tests {
		w := doJSON(t, r, http.MethodPost, "/execute", tt.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d: %s", tt.name, w.Code, w.Body.String())
		}
		resp := decode(t, w)
		if resp.Set != tt.set || resp.Field != tt.field || resp.Response != "" {
			t.Fatalf("%s: unexpected response %+v", tt.name, resp)
		}
	}

	if w := doJSON(t, r, http.MethodPost, "/execute", "{not json"); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status %d", w.Code)
	}
}

func TestJobs_Lifecycle(t *testing.T) {
	r := newTestServer(t)
	w := doJSON(t, r, http.MethodPost, "/jobs", map[string]interface{}{
		"manualEntry1": "[[0,0],[10,10]]",
		"manualEntry2": "[[0,0.001],[10,10.5]]",
		"mode":         "radius",
		"meters":       60000,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil || started.JobID == "" {
		t.Fatalf("start response %s", w.Body.String())
	}

	var status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Result *struct {
			Filename string `json:"filename"`
			Matches  int    `json:"matches"`
		} `json:"result"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		w := doJSON(t, r, http.MethodGet, "/status?job_id="+started.JobID, nil)
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("status body %s", w.Body.String())
		}
		if status.Status != "running" || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Status != "done" || status.Result == nil || status.Result.Matches != 2 {
		t.Fatalf("unexpected status %+v", status)
	}

	if w := doJSON(t, r, http.MethodGet, "/logs?job_id="+started.JobID, nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Radius search") {
		t.Fatalf("logs %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, "/download-result/"+status.Result.Filename, nil)
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Fatalf("download status %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/download-result/missing.xlsx", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing download status %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/status?job_id=nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown job status %d", w.Code)
	}
}

func TestTemplate(t *testing.T) {
	r := newTestServer(t)
	w := doJSON(t, r, http.MethodGet, "/download-template", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxMIME {
		t.Fatalf("template status %d type %q", w.Code, w.Header().Get("Content-Type"))
	}
}

func finishedJob(t *testing.T, j *jobs.Job) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := j.Snapshot(); snap.Status != jobs.StatusRunning {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s still running", j.ID)
	return jobs.Snapshot{}
}

func TestWriteResult_SkippedAfterCancel(t *testing.T) {
	s := newServer(t)
	req := pipeline.Request{
		A: parser.LiteralSource{Text: "[[51.5,-0.1]]"},
		B: parser.LiteralSource{Text: "[[48.85,2.35]]"},
	}

	for _, tc := range []struct {
		name      string
		cancelled bool
		files     int
	}{
		{"live", false, 1},
		{"cancelled", true, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			job := s.jobs.Start(context.Background(), func(ctx context.Context, job *jobs.Job) (*jobs.JobResult, error) {
				out, err := pipeline.RunContext(ctx, req, s.opts)
				if err != nil {
					return nil, err
				}
				if tc.cancelled {
					var cancel context.CancelFunc
					ctx, cancel = context.WithCancel(ctx)
					cancel()
				}
				return s.writeResult(ctx, job, out)
			})
			snap := finishedJob(t, job)

			entries, err := os.ReadDir(s.outDir)
			if err != nil {
				t.Fatalf("ReadDir: %v", err)
			}
			var written int
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), job.ID) {
					written++
				}
			}
			if written != tc.files {
				t.Fatalf("%d result files for job, want %d", written, tc.files)
			}
			if tc.cancelled {
				if snap.Status != jobs.StatusError || !strings.Contains(snap.Error, context.Canceled.Error()) {
					t.Fatalf("unexpected snapshot %+v", snap)
				}
			} else if snap.Status != jobs.StatusDone || snap.Result == nil {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
		})
	}
}
