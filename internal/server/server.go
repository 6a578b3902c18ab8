package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"geo-correlate/internal/calculator"
	"geo-correlate/internal/config"
	"geo-correlate/internal/excel"
	"geo-correlate/internal/jobs"
	"geo-correlate/internal/pipeline"
	"geo-correlate/internal/storage"
	"geo-correlate/internal/validator"
)

const (
	sessionName    = "geocorr"
	sessionFileKey = "file"
	requestIDKey   = "request_id"
	resultSheet    = "Results"
)

type Server struct {
	cfg     config.Config
	log     *slog.Logger
	uploads *storage.Store
	outDir  string
	jobs    *jobs.Store
	opts    pipeline.Options
}

func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	strategy, err := calculator.StrategyByName(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	order, err := validator.ParseOrder(cfg.Order)
	if err != nil {
		return nil, err
	}
	uploads, err := storage.New(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	outDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		log:     logger,
		uploads: uploads,
		outDir:  outDir,
		jobs:    jobs.NewStore(cfg.JobTTL),
		opts: pipeline.Options{
			MaxPoints: cfg.MaxPoints,
			Validator: validator.Options{Order: order, DecimalComma: cfg.DecimalComma},
			Strategy:  strategy,
		},
	}, nil
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), requestID())
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes

	store := cookie.NewStore([]byte(s.cfg.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, MaxAge: int(s.cfg.JobTTL / time.Second)})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/upload", s.handleUpload)
	r.POST("/execute", s.handleExecute)
	r.POST("/jobs", s.handleStartJob)
	r.GET("/logs", s.handleLogs)
	r.GET("/status", s.handleStatus)
	r.POST("/cancel", s.handleCancel)
	r.GET("/download-template", s.handleTemplate)
	r.GET("/download-result/:filename", s.handleDownload)
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) reqLog(c *gin.Context) *slog.Logger {
	return s.log.With("request_id", c.GetString(requestIDKey))
}

func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded"})
		return
	}
	if file.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": storage.ErrTooLarge.Error()})
		return
	}
	f, err := file.Open()
	if err != nil {
		s.reqLog(c).Error("open upload", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "upload failed"})
		return
	}
	defer f.Close()

	ref, err := s.uploads.Save(file.Filename, f, s.cfg.MaxUploadBytes)
	if errors.Is(err, storage.ErrTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		s.reqLog(c).Error("save upload", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "upload failed"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionFileKey, ref)
	if err := session.Save(); err != nil {
		s.reqLog(c).Warn("save session", "err", err)
	}
	s.reqLog(c).Info("file uploaded", "ref", ref, "bytes", file.Size)
	c.JSON(http.StatusOK, gin.H{"filePath": ref})
}

// buildRequest decodes the body; a non-nil error has already been answered.
func (s *Server) buildRequest(c *gin.Context) (pipeline.Request, bool) {
	var body ExecuteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return pipeline.Request{}, false
	}
	var lastFile string
	if v, ok := sessions.Default(c).Get(sessionFileKey).(string); ok {
		lastFile = v
	}
	req, err := body.toPipeline(lastFile, s.uploads.Read)
	if err != nil {
		s.fail(c, err)
		return pipeline.Request{}, false
	}
	return req, true
}

// fail maps configuration errors to 400 and everything else to 500.
func (s *Server) fail(c *gin.Context, err error) {
	if ce, ok := isConfigError(err); ok {
		s.reqLog(c).Info("rejected request", "set", ce.Set, "field", ce.Field, "err", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"set":   ce.Set,
			"field": requestField(ce),
		})
		return
	}
	s.reqLog(c).Error("correlation failed", "err", err)
	msg := "internal error"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "correlation timed out"
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (s *Server) handleExecute(c *gin.Context) {
	req, ok := s.buildRequest(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := pipeline.RunContext(ctx, req, s.opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.reqLog(c).Info("correlated",
		"mode", out.Mode,
		"rows_a", out.RowsA,
		"rows_b", out.RowsB,
		"matches", len(out.Matches()),
		"elapsed", time.Since(start),
	)
	c.JSON(http.StatusOK, gin.H{"response": out.Report, "result": out.Document})
}

func (s *Server) handleStartJob(c *gin.Context) {
	req, ok := s.buildRequest(c)
	if !ok {
		return
	}
	log := s.reqLog(c)
	job := s.jobs.Start(context.Background(), func(ctx context.Context, job *jobs.Job) (*jobs.JobResult, error) {
		return s.runJob(ctx, job, req)
	})
	log.Info("job started", "job_id", job.ID)
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "job_id": job.ID})
}

func (s *Server) runJob(ctx context.Context, job *jobs.Job, req pipeline.Request) (*jobs.JobResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	opts := s.opts
	opts.Progress = job.SetProgress
	opts.Logger = job.Log

	start := time.Now()
	out, err := pipeline.RunContext(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	job.Log(fmt.Sprintf("Calculation finished in %s.", time.Since(start)))
	return s.writeResult(ctx, job, out)
}

// writeResult exports a finished run; nothing is written once ctx is done.
func (s *Server) writeResult(ctx context.Context, job *jobs.Job, out *pipeline.Outcome) (*jobs.JobResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("%s_%s.xlsx", job.ID, out.Mode)
	outputPath := filepath.Join(s.outDir, filename)
	job.Log("Writing result workbook...")
	if err := excel.WriteResult(outputPath, out.Matches(), out.Diagnostics(), resultSheet); err != nil {
		return nil, fmt.Errorf("write result: %w", err)
	}
	s.log.Info("job finished", "job_id", job.ID, "output", filename)
	return &jobs.JobResult{
		Mode:        string(out.Mode),
		Matches:     len(out.Matches()),
		Diagnostics: len(out.Diagnostics()),
		Sheet:       resultSheet,
		Output:      outputPath,
		Filename:    filename,
		Report:      out.Report,
	}, nil
}

func (s *Server) handleLogs(c *gin.Context) {
	job := s.jobs.Get(c.Query("job_id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Job not found"})
		return
	}
	snap := job.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"logs":     snap.Logs,
		"status":   snap.Status,
		"progress": snap.Progress,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	job := s.jobs.Get(c.Query("job_id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Job not found"})
		return
	}
	snap := job.Snapshot()
	res := gin.H{
		"ok":     true,
		"status": snap.Status,
		"error":  snap.Error,
	}
	if snap.Result != nil {
		res["result"] = snap.Result
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCancel(c *gin.Context) {
	if !s.jobs.Cancel(c.Query("job_id")) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleTemplate(c *gin.Context) {
	data, err := excel.Template()
	if err != nil {
		s.reqLog(c).Error("build template", "err", err)
		c.String(http.StatusInternalServerError, "Template not available")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="points_template.xlsx"`)
	c.Data(http.StatusOK, xlsxMIME, data)
}

func (s *Server) handleDownload(c *gin.Context) {
	name := c.Param("filename")
	if name != filepath.Base(name) || name == "." || name == ".." {
		c.String(http.StatusBadRequest, "invalid file name")
		return
	}
	target := filepath.Join(s.outDir, name)
	if _, err := os.Stat(target); err != nil {
		c.String(http.StatusNotFound, "Result not found")
		return
	}
	c.FileAttachment(target, name)
}
