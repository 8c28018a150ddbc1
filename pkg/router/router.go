// Package router answers intercepted resource requests from the override store,
// then the virtual filesystem, then the network, stopping at the first answer.
package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

const logPrefix = "router:resolve"

// Where a response came from.
const (
	SourceOverride = "override"
	SourceFS       = "fs"
	SourceNetwork  = "network"
)

const (
	defaultContentType = "application/octet-stream"
	networkErrorBody   = "Network error"
	defaultMaxBody     = 64 << 20
)

// OverrideSource looks up override blobs by normalized key.
type OverrideSource interface {
	Lookup(key string) ([]byte, bool)
}

// FileSource is the read side of the virtual filesystem.
type FileSource interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
}

// Response is a fully buffered answer to one request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source string
}

// Write copies the response onto w.
func (r *Response) Write(w http.ResponseWriter) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	w.Write(r.Body)
}

// Options configures a Router. Nil sources are skipped.
type Options struct {
	Overrides OverrideSource
	Files     FileSource
	// Client performs network passthrough. Defaults to a client with Timeout.
	Client  *http.Client
	Timeout time.Duration
	// Origin, when set, receives every passthrough request as origin + path + query.
	Origin string
	// MaxBody caps a buffered network body. Larger bodies are a network error.
	// Defaults to 64 MiB.
	MaxBody int64
}

// Router resolves requests in strict priority order.
type Router struct {
	overrides OverrideSource
	files     FileSource
	client    *http.Client
	origin    *url.URL
	maxBody   int64
}

// New creates a Router.
func New(opts Options) (*Router, error) {
	r := &Router{overrides: opts.Overrides, files: opts.Files, client: opts.Client, maxBody: opts.MaxBody}
	if r.maxBody <= 0 {
		r.maxBody = defaultMaxBody
	}
	if r.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		r.client = &http.Client{Timeout: timeout}
	}
	if opts.Origin != "" {
		origin, err := url.Parse(opts.Origin)
		if err != nil || origin.Scheme == "" || origin.Host == "" {
			return nil, fmt.Errorf("%s - invalid origin %q", logPrefix, opts.Origin)
		}
		r.origin = origin
	}
	return r, nil
}

// ResolveURL resolves a GET for rawURL.
func (r *Router) ResolveURL(ctx context.Context, rawURL string) *Response {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		req = &http.Request{Method: http.MethodGet, URL: &url.URL{Path: rawURL}, Header: http.Header{}}
		req = req.WithContext(ctx)
	}
	return r.Resolve(ctx, req)
}

// Resolve answers req. It never returns nil.
func (r *Router) Resolve(ctx context.Context, req *http.Request) *Response {
	key := RequestKey(req.URL)

	if resp := r.fromOverrides(key); resp != nil {
		slog.Debug(fmt.Sprintf("%s - %s served from overrides", logPrefix, key))
		return resp
	}
	if resp := r.fromFiles(key); resp != nil {
		slog.Debug(fmt.Sprintf("%s - %s served from filesystem", logPrefix, key))
		return resp
	}
	return r.fromNetwork(ctx, req)
}

func (r *Router) fromOverrides(key string) *Response {
	if r.overrides == nil {
		return nil
	}
	data, ok := r.overrides.Lookup(key)
	if !ok {
		return nil
	}
	resp := localResponse(key, data, SourceOverride)
	resp.Header.Set("Content-Length", strconv.Itoa(len(data)))
	return resp
}

func (r *Router) fromFiles(key string) *Response {
	if r.files == nil {
		return nil
	}
	name := fsPath(key)
	info, err := r.files.Stat(name)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - %s not in filesystem: %v", logPrefix, name, err))
		return nil
	}
	if info.IsDir() {
		name = path.Join(name, "index.html")
		info, err = r.files.Stat(name)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - %s has no index: %v", logPrefix, name, err))
			return nil
		}
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	data, err := r.files.ReadFile(name)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - failed to read %s: %v", logPrefix, name, err))
		return nil
	}
	return localResponse(name, data, SourceFS)
}

func (r *Router) fromNetwork(ctx context.Context, req *http.Request) *Response {
	target, err := r.target(req)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - no network target for %s: %v", logPrefix, req.URL, err))
		return networkError()
	}

	var body io.Reader
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return networkError()
		}
		body = bytes.NewReader(data)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	out, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to build request for %s: %v", logPrefix, target, err))
		return networkError()
	}
	copyHeaders(out.Header, req.Header)

	resp, err := r.client.Do(out)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - network error for %s: %v", logPrefix, target, err))
		return networkError()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBody+1))
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - failed reading %s: %v", logPrefix, target, err))
		return networkError()
	}
	if int64(len(data)) > r.maxBody {
		slog.Warn(fmt.Sprintf("%s - body of %s exceeds %d bytes", logPrefix, target, r.maxBody))
		return networkError()
	}
	header := http.Header{}
	copyHeaders(header, resp.Header)
	slog.Debug(fmt.Sprintf("%s - %s passed through (%d)", logPrefix, target, resp.StatusCode))
	return &Response{Status: resp.StatusCode, Header: header, Body: data, Source: SourceNetwork}
}

func (r *Router) target(req *http.Request) (string, error) {
	if r.origin != nil {
		u := *r.origin
		u.Path = path.Join("/", strings.TrimSuffix(r.origin.Path, "/"), req.URL.Path)
		if strings.HasSuffix(req.URL.Path, "/") && !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		u.RawPath = ""
		u.RawQuery = req.URL.RawQuery
		u.Fragment = ""
		return u.String(), nil
	}
	if req.URL.IsAbs() {
		u := *req.URL
		u.Fragment = ""
		return u.String(), nil
	}
	return "", fmt.Errorf("relative URL without origin")
}

func localResponse(name string, data []byte, source string) *Response {
	header := http.Header{}
	header.Set("Content-Type", contentType(name))
	header.Set("Cache-Control", "no-cache")
	return &Response{Status: http.StatusOK, Header: header, Body: data, Source: source}
}

func networkError() *Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: header,
		Body:   []byte(networkErrorBody),
		Source: SourceNetwork,
	}
}

// contentType derives a MIME type from the extension of name, ignoring any
// query or fragment.
func contentType(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}

var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
