package echoapi

import (
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/perm"
	"github.com/cs61as/coursesite/core/user"
	appfs "github.com/cs61as/coursesite/fs"
)

const pagesDir = "assets/templates/pages"

// renderer renders the embedded page templates. Every page `name.gohtml` is parsed along with `_base.gohtml`.
type renderer struct {
	pages map[string]*template.Template
}

var _ echo.Renderer = (*renderer)(nil)

var pageFuncs = template.FuncMap{
	"can": func(p auth.Principal, name string) bool {
		c, err := perm.ParseCapability(name)
		return err == nil && p.Can(c)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format("2006-01-02 15:04")
	},
	"add":         func(a, b int) int { return a + b },
	"deref":       func(b *bool) bool { return b != nil && *b },
	"displayName": func(u user.User) string { return u.DisplayName() },
	"roleName":    func(u user.User) string { return u.RoleName() },
}

func newRenderer(conf *core.Config, logger core.Logger) *renderer {
	r := &renderer{pages: make(map[string]*template.Template)}

	entries, err := fs.ReadDir(appfs.FS, pagesDir)
	if err != nil {
		logger.Fatal("echoapi.newRenderer: reading pages dir", err)
		return r
	}
	base := path.Join(pagesDir, "_base.gohtml")
	for _, e := range entries {
		fname := e.Name()
		if e.IsDir() || strings.HasPrefix(fname, "_") || path.Ext(fname) != ".gohtml" {
			continue
		}
		tmpl, err := template.New(fname).Funcs(pageFuncs).ParseFS(appfs.FS, base, path.Join(pagesDir, fname))
		if err != nil {
			logger.Fatal("echoapi.newRenderer: parsing "+fname, err)
			continue
		}
		if conf.Debug || conf.TestMode {
			tmpl = tmpl.Option("missingkey=error")
		}
		r.pages[strings.TrimSuffix(fname, ".gohtml")] = tmpl
	}
	return r
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return errors.Errorf("page %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// page is the data every page template receives.
type page struct {
	AppName   string
	Title     string
	Path      string
	Principal auth.Principal
	Flashes   []core.FlashGroup
	Data      interface{}
}

// render pops the session flashes into the page and renders it.
func (s *server) render(ctx echo.Context, name, title string, data interface{}) error {
	var flashes []core.FlashGroup
	if sess := sessionOf(ctx); sess != nil {
		flashes = sess.PopFlashes()
	}
	return ctx.Render(http.StatusOK, name, page{
		AppName:   s.Conf.AppName,
		Title:     title,
		Path:      ctx.Request().URL.Path,
		Principal: principalOf(ctx),
		Flashes:   flashes,
		Data:      data,
	})
}

// redirect flashes an info message, if any, and redirects.
func redirect(ctx echo.Context, to string, info ...string) error {
	if sess := sessionOf(ctx); sess != nil {
		for _, msg := range info {
			sess.AddFlash(core.FlashInfo, msg)
		}
	}
	return ctx.Redirect(http.StatusFound, to)
}
