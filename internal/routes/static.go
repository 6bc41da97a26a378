package routes

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
)

const indexFile = "index.html"

// StaticRouter serves files from a directory tree under a URL prefix.
// Missing files are misses; a path that tries to leave the root is hard
// rejected with 403.
type StaticRouter struct {
	name   string
	prefix string
	root   fs.FS
}

// NewStaticRouter creates a static candidate over root, usually os.DirFS.
func NewStaticRouter(name, prefix string, root fs.FS) *StaticRouter {
	if prefix == "" {
		prefix = "/"
	}
	return &StaticRouter{name: name, prefix: prefix, root: root}
}

func (s *StaticRouter) Name() string { return s.name }

func (s *StaticRouter) Probe(_ context.Context, req *http.Request) dispatch.Outcome {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return dispatch.Rejected(http.StatusNotFound)
	}

	name, ok := s.resolve(req.URL.Path)
	if !ok {
		return dispatch.Rejected(http.StatusNotFound)
	}
	if name == "" {
		return dispatch.Rejected(http.StatusForbidden)
	}

	if _, err := s.locate(name); err != nil {
		return dispatch.Rejected(http.StatusNotFound)
	}
	return dispatch.Matched(http.StatusOK)
}

func (s *StaticRouter) Dispatch(_ context.Context, req *http.Request, status int) (*dispatch.Response, error) {
	if status != http.StatusOK {
		return errorBody(status), nil
	}

	name, ok := s.resolve(req.URL.Path)
	if !ok || name == "" {
		return nil, dispatch.NewError(http.StatusNotFound, dispatch.TextCodeStaticReadFailed, "path no longer resolves")
	}

	file, err := s.locate(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dispatch.WrapError(err, http.StatusNotFound, dispatch.TextCodeStaticReadFailed, "file removed")
		}
		return nil, dispatch.WrapError(err, http.StatusInternalServerError, dispatch.TextCodeStaticReadFailed, "stat failed")
	}

	f, err := s.root.Open(file)
	if err != nil {
		return nil, dispatch.WrapError(err, http.StatusInternalServerError, dispatch.TextCodeStaticReadFailed, "open failed").
			WithMetadata(map[string]any{"file": file})
	}

	header := make(http.Header)
	header.Set("Content-Type", contentType(file))
	if info, err := f.Stat(); err == nil {
		header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		header.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	}

	if req.Method == http.MethodHead {
		f.Close()
		return &dispatch.Response{Status: status, Header: header}, nil
	}

	return &dispatch.Response{Status: status, Header: header, Body: f}, nil
}

// resolve maps a URL path to an fs name. ok is false when the path is outside
// the prefix; an empty name means the path escapes the root.
func (s *StaticRouter) resolve(urlPath string) (name string, ok bool) {
	if !underPrefix(urlPath, s.prefix) {
		return "", false
	}

	rel := trimPrefix(urlPath, s.prefix)
	for _, segment := range strings.Split(rel, "/") {
		if segment == ".." {
			return "", true
		}
	}

	name = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if name == "" {
		name = "."
	}
	if !fs.ValidPath(name) {
		return "", true
	}
	return name, true
}

// locate returns the file to serve for name, following directories to their
// index.
func (s *StaticRouter) locate(name string) (string, error) {
	info, err := fs.Stat(s.root, name)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return name, nil
	}

	index := path.Join(name, indexFile)
	info, err = fs.Stat(s.root, index)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fs.ErrNotExist
	}
	return index, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
