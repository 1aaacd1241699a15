package table

import (
	"embed"
	"html/template"
	"io"

	"github.com/okian/boxboard/internal/domain/snapshot"
)

//go:embed templates/leaderboard.html.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.New("leaderboard").
	Funcs(template.FuncMap{"ariaSort": ariaSort}).
	ParseFS(templateFS, "templates/leaderboard.html.tmpl"))

// RenderHTML writes the model as an HTML page in its current sort order.
func RenderHTML(w io.Writer, m *Model) error {
	if m == nil {
		return ErrNoData
	}
	return pageTemplate.ExecuteTemplate(w, "page", m.View())
}

func ariaSort(d snapshot.Direction) string {
	if d == snapshot.Desc {
		return "descending"
	}
	return "ascending"
}
