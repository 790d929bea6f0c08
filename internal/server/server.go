// Package server exposes the task engine over a local HTTP control
// plane. It is an in-process helper for one invocation, not a daemon.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/twiced-technology-gmbh/ralphy/internal/agent"
	"github.com/twiced-technology-gmbh/ralphy/internal/config"
	"github.com/twiced-technology-gmbh/ralphy/internal/executor"
	"github.com/twiced-technology-gmbh/ralphy/internal/prd"
	"github.com/twiced-technology-gmbh/ralphy/internal/task"
)

// Server routes JSON requests to the executor and PRD loops.
type Server struct {
	version string
	dir     string // project root the control plane operates on
	mux     *http.ServeMux

	// ProgressFn, when set, observes parallel-scheduler events. The
	// control plane runs in the caller's process, so the observer can
	// drive a live terminal view.
	ProgressFn func(prd.Event)
}

// New creates a control plane for the project rooted at dir.
func New(version, dir string) *Server {
	s := &Server{version: version, dir: dir, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /v1/version", s.handleVersion)
	s.mux.HandleFunc("POST /v1/config/init", s.handleConfigInit)
	s.mux.HandleFunc("GET /v1/config", s.handleConfigGet)
	s.mux.HandleFunc("POST /v1/config/rules", s.handleConfigRules)
	s.mux.HandleFunc("GET /v1/tasks/next", s.handleTasksNext)
	s.mux.HandleFunc("POST /v1/tasks/complete", s.handleTasksComplete)
	s.mux.HandleFunc("POST /v1/run/single", s.handleRunSingle)
	s.mux.HandleFunc("POST /v1/run/prd", s.handleRunPRD)
	s.mux.HandleFunc("/", s.handleNotFound)
}

// Handler returns the HTTP handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Listen binds the control plane to addr ("127.0.0.1:0" for an ephemeral
// port) and serves until the returned shutdown function is called.
func (s *Server) Listen(addr string) (baseURL string, shutdown func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	return "http://" + ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleConfigInit(w http.ResponseWriter, _ *http.Request) {
	cfg, err := config.Init(s.dir)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrExists) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "path": cfg.Path()})
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	cfg, err := config.Load(s.dir)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleConfigRules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rule string `json:"rule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rule == "" {
		writeError(w, http.StatusBadRequest, "rule is required")
		return
	}
	cfg, err := config.AddRule(s.dir, req.Rule)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rules": cfg.Rules})
}

// sourceFrom builds a task source from request parameters, resolving
// relative file paths against the project root.
func (s *Server) sourceFrom(prdPath, yamlPath, repo, label string) task.TaskSource {
	if prdPath != "" && !filepath.IsAbs(prdPath) {
		prdPath = filepath.Join(s.dir, prdPath)
	}
	if yamlPath != "" && !filepath.IsAbs(yamlPath) {
		yamlPath = filepath.Join(s.dir, yamlPath)
	}
	if prdPath == "" && yamlPath == "" && repo == "" {
		prdPath = filepath.Join(s.dir, task.DefaultPRDPath)
	}
	return task.Select(task.SelectOptions{
		PRDPath:     prdPath,
		YAMLPath:    yamlPath,
		GitHubRepo:  repo,
		GitHubLabel: label,
	})
}

func (s *Server) handleTasksNext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := s.sourceFrom(q.Get("prd"), q.Get("yaml"), q.Get("github"), q.Get("githubLabel"))
	next, err := source.Next()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "error", "source": source.Type(), "message": err.Error(),
		})
		return
	}
	if next == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "empty", "source": source.Type()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "task": next})
}

func (s *Server) handleTasksComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Task        string `json:"task"`
		PRD         string `json:"prd"`
		YAML        string `json:"yaml"`
		GitHub      string `json:"github"`
		GitHubLabel string `json:"githubLabel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}
	source := s.sourceFrom(req.PRD, req.YAML, req.GitHub, req.GitHubLabel)
	status, err := source.Complete(req.Task)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "error", "source": source.Type(), "message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "source": source.Type(), "task": req.Task})
}

func (s *Server) handleRunSingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Task           string `json:"task"`
		Engine         string `json:"engine"`
		SkipTests      bool   `json:"skipTests"`
		SkipLint       bool   `json:"skipLint"`
		AutoCommit     bool   `json:"autoCommit"`
		DryRun         bool   `json:"dryRun"`
		MaxRetries     int    `json:"maxRetries"`
		RetryDelay     int    `json:"retryDelay"`
		PromptMode     string `json:"promptMode"`
		TaskSource     string `json:"taskSource"`
		TaskSourcePath string `json:"taskSourcePath"`
		IssueBody      string `json:"issueBody"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}
	engine, err := agent.ParseEngine(req.Engine)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := executor.Execute(r.Context(), req.Task, executor.Options{
		Engine:         engine,
		Dir:            s.dir,
		SkipTests:      req.SkipTests,
		SkipLint:       req.SkipLint,
		AutoCommit:     req.AutoCommit,
		DryRun:         req.DryRun,
		MaxRetries:     req.MaxRetries,
		RetryDelay:     time.Duration(req.RetryDelay) * time.Second,
		PromptMode:     req.PromptMode,
		TaskSource:     req.TaskSource,
		TaskSourcePath: req.TaskSourcePath,
		IssueBody:      req.IssueBody,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleRunPRD(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PRD           string `json:"prd"`
		YAML          string `json:"yaml"`
		GitHub        string `json:"github"`
		GitHubLabel   string `json:"githubLabel"`
		MaxIterations *int   `json:"maxIterations"`
		MaxRetries    int    `json:"maxRetries"`
		RetryDelay    int    `json:"retryDelay"`
		BranchPerTask bool   `json:"branchPerTask"`
		BaseBranch    string `json:"baseBranch"`
		CreatePR      bool   `json:"createPr"`
		DraftPR       bool   `json:"draftPr"`
		SkipTests     bool   `json:"skipTests"`
		SkipLint      bool   `json:"skipLint"`
		AutoCommit    bool   `json:"autoCommit"`
		Parallel      bool   `json:"parallel"`
		MaxParallel   int    `json:"maxParallel"`
		Engine        string `json:"engine"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	engine, err := agent.ParseEngine(req.Engine)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var deps *prd.Deps
	if s.ProgressFn != nil && req.Parallel {
		deps = &prd.Deps{ProgressFn: s.ProgressFn}
	}

	res := prd.Run(r.Context(), prd.RunOptions{
		Dir:           s.dir,
		PRDPath:       req.PRD,
		YAMLPath:      req.YAML,
		GitHubRepo:    req.GitHub,
		GitHubLabel:   req.GitHubLabel,
		Engine:        engine,
		MaxIters:      req.MaxIterations,
		MaxRetries:    req.MaxRetries,
		RetryDelay:    time.Duration(req.RetryDelay) * time.Second,
		SkipTests:     req.SkipTests,
		SkipLint:      req.SkipLint,
		AutoCommit:    req.AutoCommit,
		BranchPerTask: req.BranchPerTask,
		BaseBranch:    req.BaseBranch,
		CreatePR:      req.CreatePR,
		DraftPR:       req.DraftPR,
		Parallel:      req.Parallel,
		MaxParallel:   req.MaxParallel,
		Deps:          deps,
	})
	writeJSON(w, http.StatusOK, res)
}
