package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

const indexFile = "index.html"

//go:embed all:dashboard/dist
var dashboardFS embed.FS

type Router interface {
	HandleFunc(pattern string, handler http.HandlerFunc)
	Mount(pattern string, handler http.Handler)
}

// DashboardApp serves the single page dashboard that talks to /api.
func DashboardApp() (*WebApp, error) {
	return NewWebApp("dashboard", dashboardFS, "dashboard/dist", "/ui/")
}

type WebApp struct {
	name    string
	l       *slog.Logger
	fs      fs.FS
	urlBase string
}

func NewWebApp(name string, app fs.FS, subDir string, urlBase string) (*WebApp, error) {
	subFS, err := fs.Sub(app, subDir)
	if err != nil {
		return nil, err
	}

	// Ensure urlBase starts with / and ends with /
	urlBase = strings.TrimSuffix(urlBase, "/")
	urlBase = strings.TrimPrefix(urlBase, "/")
	urlBase = "/" + urlBase + "/"

	return &WebApp{
		name:    name,
		fs:      subFS,
		urlBase: urlBase,
		l:       slog.Default().With(slog.String("component", name)),
	}, nil
}

// ServeHTTP serves static assets by exact name. Extensionless paths fall back to
// index.html so the dashboard can own its client-side routes; missing assets 404.
func (wa *WebApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.URL.Path, "/")
	if name == "" {
		name = indexFile
	}

	if info, err := fs.Stat(wa.fs, name); err == nil && !info.IsDir() {
		wa.serve(w, r, name)
		return
	}

	if path.Ext(name) != "" {
		wa.l.Debug("asset not found", slog.String("path", name))
		http.NotFound(w, r)

		return
	}

	wa.serve(w, r, indexFile)
}

func (wa *WebApp) serve(w http.ResponseWriter, r *http.Request, name string) {
	if name == indexFile {
		// The page is tiny and changes with every release.
		w.Header().Set("Cache-Control", "no-cache")
	}

	http.ServeFileFS(w, r, wa.fs, name)
}

// Handler returns an http.Handler that serves the WebApp at the given path.
func (wa *WebApp) Handler(path string) http.Handler {
	return http.StripPrefix(path, wa)
}

// Register registers the WebApp with the given router.
func (wa *WebApp) Register(mux Router, l *slog.Logger) {
	wa.l = l.With(slog.String("app", wa.name), slog.String("urlBase", wa.urlBase), slog.String("component", "file-server"))
	wa.l.Info("registering web app")

	// Redirect base without trailing slash to base with slash
	baseWithoutSlash := strings.TrimSuffix(wa.urlBase, "/")
	mux.HandleFunc(baseWithoutSlash, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, wa.urlBase, http.StatusMovedPermanently)
	})

	// Mounting with the trailing slash keeps the redirect above reachable.
	mux.Mount(wa.urlBase, wa.Handler(wa.urlBase))
}
