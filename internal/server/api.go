package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/git-pkgs/pkginspect/internal/archive"
	"github.com/git-pkgs/pkginspect/internal/buildsys"
	"github.com/git-pkgs/pkginspect/internal/inspect"
)

// APIHandler serves the inspection endpoints.
type APIHandler struct {
	inspect *inspect.Service
	logger  *slog.Logger
}

// NewAPIHandler creates an APIHandler backed by svc.
func NewAPIHandler(svc *inspect.Service, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{inspect: svc, logger: logger}
}

// Routes mounts the endpoints on a router already scoped to
// /api/packages/{kind}.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/list", h.HandleListing)
	r.Get("/file-info", h.HandleFileInfo)
	r.Get("/file-info/tree", h.HandleFileInfoTree)
	r.Get("/dirs", h.HandleDirectoryInfo)
	r.Get("/dirs/tree", h.HandleDirectoryInfoTree)
	r.Get("/types", h.HandleFileTypes)
	r.Get("/root", h.HandleRoot)
	r.Get("/contains", h.HandleContains)
	r.Get("/search", h.HandleSearch)
	r.Get("/build-system", h.HandleBuildSystem)
	r.Get("/build-info", h.HandleBuildInfo)
	r.Get("/check", h.HandleCheck)
	r.Get("/file", h.HandleFile)
	r.Get("/wheel", h.HandleWheel)
	r.Get("/gem", h.HandleGem)
}

// RootResponse is the archive's common top-level directory.
type RootResponse struct {
	Root string `json:"root"`
}

// SearchResponse is the first match of a search, if any.
type SearchResponse struct {
	Found bool   `json:"found"`
	Name  string `json:"name,omitempty"`
}

// BuildSystemResponse carries a build system tag.
type BuildSystemResponse struct {
	BuildSystem string `json:"build_system"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleListing handles GET /api/packages/{kind}/list
func (h *APIHandler) HandleListing(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		names, err := h.inspect.Listing(ctx, req)
		if names == nil {
			names = []string{}
		}
		return names, err
	})
}

// HandleFileInfo handles GET /api/packages/{kind}/file-info
func (h *APIHandler) HandleFileInfo(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		entries, err := h.inspect.FileInfoList(ctx, req)
		return nonNil(entries), err
	})
}

// HandleFileInfoTree handles GET /api/packages/{kind}/file-info/tree
func (h *APIHandler) HandleFileInfoTree(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		return h.inspect.FileInfoTree(ctx, req)
	})
}

// HandleDirectoryInfo handles GET /api/packages/{kind}/dirs
func (h *APIHandler) HandleDirectoryInfo(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		entries, err := h.inspect.DirectoryInfoList(ctx, req)
		return nonNil(entries), err
	})
}

// HandleDirectoryInfoTree handles GET /api/packages/{kind}/dirs/tree
func (h *APIHandler) HandleDirectoryInfoTree(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		return h.inspect.DirectoryInfoTree(ctx, req)
	})
}

// HandleFileTypes handles GET /api/packages/{kind}/types
func (h *APIHandler) HandleFileTypes(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		return h.inspect.FileTypes(ctx, req)
	})
}

// HandleRoot handles GET /api/packages/{kind}/root
func (h *APIHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		root, err := h.inspect.Root(ctx, req)
		return RootResponse{Root: root}, err
	})
}

// HandleContains handles GET /api/packages/{kind}/contains
func (h *APIHandler) HandleContains(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		return h.inspect.Contains(ctx, req)
	})
}

// HandleSearch handles GET /api/packages/{kind}/search
func (h *APIHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		name, found, err := h.inspect.Search(ctx, req)
		return SearchResponse{Found: found, Name: name}, err
	})
}

// HandleBuildSystem handles GET /api/packages/{kind}/build-system
func (h *APIHandler) HandleBuildSystem(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		tag, err := h.inspect.BuildSystem(ctx, req)
		return BuildSystemResponse{BuildSystem: tag}, err
	})
}

// HandleBuildInfo handles GET /api/packages/{kind}/build-info
func (h *APIHandler) HandleBuildInfo(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		return h.inspect.BuildInfo(ctx, req)
	})
}

// HandleCheck handles GET /api/packages/{kind}/check. A package that no
// longer matches its build system is reported with 404 and the reason.
func (h *APIHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.inspect.CheckBuildSystem(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.OK {
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}

// HandleFile handles GET /api/packages/{kind}/file and returns the raw
// member contents.
func (h *APIHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data, err := h.inspect.FileContents(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// HandleWheel handles GET /api/packages/{kind}/wheel
func (h *APIHandler) HandleWheel(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		return h.inspect.WheelInfo(ctx, req)
	})
}

// HandleGem handles GET /api/packages/{kind}/gem
func (h *APIHandler) HandleGem(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, req inspect.Request) (any, error) {
		return h.inspect.GemInfo(ctx, req)
	})
}

// serve parses the request, runs fn and writes its result as JSON.
func (h *APIHandler) serve(w http.ResponseWriter, r *http.Request, fn func(context.Context, inspect.Request) (any, error)) {
	req, err := parseRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := fn(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// parseRequest builds an inspection request from the kind path parameter
// and the query string.
func parseRequest(r *http.Request) (inspect.Request, error) {
	kind, err := buildsys.LookupKind(chi.URLParam(r, "kind"))
	if err != nil {
		return inspect.Request{}, err
	}

	q := r.URL.Query()
	req := inspect.Request{
		Kind: kind,
		Attributes: buildsys.Attributes{
			PackagePath: q.Get("package_path"),
			SourcePath:  q.Get("source_path"),
			BuildDir:    q.Get("build_dir"),
			BuildFile:   q.Get("build_file"),
			ConfigDir:   q.Get("config_dir"),
			BuildSystem: q.Get("build_system"),
		},
		Dirname:  q.Get("dirname"),
		Filter:   q.Get("filter"),
		Filename: q.Get("filename"),
	}
	if req.Attributes.PackagePath == "" {
		return inspect.Request{}, fmt.Errorf("%w: package_path is required", inspect.ErrInvalidRequest)
	}

	if v := q.Get("recursive"); v != "" {
		req.Recursive, err = strconv.ParseBool(v)
		if err != nil {
			return inspect.Request{}, fmt.Errorf("%w: recursive must be a boolean, got %q", inspect.ErrInvalidRequest, v)
		}
	}

	for _, v := range q["candidate"] {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				req.Candidates = append(req.Candidates, c)
			}
		}
	}
	return req, nil
}

// statusFor maps an inspection error to an HTTP status.
func statusFor(err error) int {
	switch inspect.Outcome(err) {
	case "invalid":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "unreadable":
		return http.StatusUnprocessableEntity
	case "tool_failed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("inspection failed",
			"request_id", GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(entries []archive.Entry) []archive.Entry {
	if entries == nil {
		return []archive.Entry{}
	}
	return entries
}
