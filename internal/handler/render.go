package handler

import (
    "embed"
    "html/template"
    "io"

    "github.com/labstack/echo/v4"
)

//go:embed views/*.html
var views embed.FS

// Templates renders the embedded HTML views by file name.
type Templates struct {
    t *template.Template
}

// NewTemplates parses every view under views/.
func NewTemplates() (*Templates, error) {
    t, err := template.ParseFS(views, "views/*.html")
    if err != nil {
        return nil, err
    }
    return &Templates{t: t}, nil
}

// Render implements echo.Renderer.
func (r *Templates) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
    return r.t.ExecuteTemplate(w, name, data)
}
