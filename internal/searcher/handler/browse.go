package handler

import (
	"bytes"
	"html/template"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/cgportillo/project-cpxrtillo/internal/index"
)

var browseTemplate = template.Must(template.New("browse").Funcs(template.FuncMap{
	"score": func(f float64) string { return strconv.FormatFloat(f, 'f', 8, 64) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Search</title>
<style>
body { font-family: sans-serif; margin: 2em auto; max-width: 60em; }
table { border-collapse: collapse; width: 100%; }
td, th { border-bottom: 1px solid #ddd; padding: 0.3em 0.6em; text-align: left; }
</style>
</head>
<body>
<h1>Search</h1>
<form method="post" action="/">
  <input type="text" name="q" value="{{.Query}}" size="50" autofocus>
  <label><input type="checkbox" name="exact" value="true"{{if .Exact}} checked{{end}}> exact</label>
  <button type="submit">Search</button>
</form>
{{if .Query}}
<p>{{len .Results}} result(s) for <code>{{.Normalized}}</code> in {{.Took}}</p>
{{if .Results}}
<table>
<tr><th>Location</th><th>Count</th><th>Score</th></tr>
{{range .Results}}<tr><td><a href="{{.Location}}">{{.Location}}</a></td><td>{{.Count}}</td><td>{{score .Score}}</td></tr>
{{end}}</table>
{{end}}
{{end}}
<h2>Indexed locations ({{len .Locations}})</h2>
<table>
<tr><th>Location</th><th>Words</th></tr>
{{range .Locations}}<tr><td>{{.Name}}</td><td>{{.Words}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type browseLocation struct {
	Name  string
	Words int
}

type browsePage struct {
	Query      string
	Normalized string
	Exact      bool
	Results    []index.Result
	Took       time.Duration
	Locations  []browseLocation
}

// Browse renders the HTML search page. GET shows the form (and runs a query
// given as ?q=); POST submits the form.
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	page := browsePage{Query: r.Form.Get("q"), Exact: h.defaultExact}
	if v := r.Form.Get("exact"); v != "" {
		page.Exact = v == "true"
	} else if r.Method == http.MethodPost {
		// an unchecked box is absent from the form
		page.Exact = false
	}
	if page.Query != "" {
		start := time.Now()
		page.Results = h.limit(h.engine.Query(r.Context(), page.Query, page.Exact))
		page.Took = time.Since(start).Round(time.Microsecond)
		page.Normalized = h.engine.Normalize(page.Query)
	}
	counts := h.index.Counts()
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		page.Locations = append(page.Locations, browseLocation{Name: name, Words: counts[name]})
	}

	var buf bytes.Buffer
	if err := browseTemplate.Execute(&buf, page); err != nil {
		h.logger.Error("rendering browse page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
