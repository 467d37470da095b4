package web

import (
	"bytes"
	"html/template"
	"net/http"

	"eventcal/internal/dateutil"
	appLog "eventcal/internal/log"
	"eventcal/internal/view"
)

// calendarTmpl is the bare page the snapshot job captures. The root element
// carries data-ready="true" once everything below it is rendered.
var calendarTmpl = template.Must(template.New("calendar").
	Funcs(template.FuncMap{"rows": weekRows}).
	Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:16px}
table{border-collapse:collapse;width:100%;table-layout:fixed}
th,td{border:1px solid #999;vertical-align:top;padding:4px;height:96px}
td.blank{background:#eee}
td.today{outline:2px solid #000}
.card{font-size:12px;margin-bottom:2px}
.more{font-size:11px;color:#555}
</style>
</head>
<body>
<div id="calendar" data-mode="{{.Mode}}" data-ready="true">
<h1>{{.Title}}</h1>
{{- if .Unavailable}}
<p class="message">{{.Message}}</p>
{{- else if .Month}}
<table>
<tr>{{range .Month.Weekdays}}<th>{{.}}</th>{{end}}</tr>
{{- range $i, $row := rows .Month.Cells}}
<tr>{{range $row}}{{if .Blank}}<td class="blank"></td>{{else}}<td{{if .IsToday}} class="today"{{end}}>
<div class="day">{{.Date.Day}}</div>
{{- range .Cards}}<div class="card">{{.TimeLabel}} {{.Name}}{{if .SpotsLabel}} ({{.SpotsLabel}}){{end}}</div>{{end}}
{{- if .Overflow}}<div class="more">+{{.Overflow}} more</div>{{end}}
</td>{{end}}{{end}}</tr>
{{- end}}
</table>
{{- else if .Week}}
<table>
<tr>{{range .Week}}<th>{{.Label}}</th>{{end}}</tr>
<tr>{{range .Week}}<td{{if .IsToday}} class="today"{{end}}>
{{- range .Cards}}<div class="card">{{.TimeLabel}} {{.Name}}</div>{{end}}
</td>{{end}}</tr>
</table>
{{- else}}
{{- range .Cards}}
<div class="card"><strong>{{.DateLabel}}</strong> {{.TimeLabel}} {{.Name}}{{if .Location}}, {{.Location}}{{end}}{{if .SpotsLabel}} ({{.SpotsLabel}}){{end}}</div>
{{- end}}
{{- end}}
{{- if and .Empty (not .Unavailable)}}
<p class="message">{{.Message}}</p>
{{- end}}
</div>
</body>
</html>
`))

// weekRows splits grid cells into rows of seven.
func weekRows(cells []view.Day) [][]view.Day {
	var out [][]view.Day
	for len(cells) > 0 {
		n := min(7, len(cells))
		out = append(out, cells[:n])
		cells = cells[n:]
	}
	return out
}

// handleCalendar renders the HTML calendar. It takes the same view, date
// and filter parameters as /api/events (default view month) and leaves the
// API's view state alone.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := view.Request{
		Mode:   view.ModeMonth,
		Filter: view.FilterByName(q.Get("filter")),
	}
	if v := q.Get("view"); v != "" {
		mode, err := view.ParseMode(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Mode = mode
	}
	if d := q.Get("date"); d != "" {
		anchor, err := dateutil.Parse(d)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		req.Anchor = anchor
	}

	page, err := s.deps.Renderer.Render(r.Context(), req)
	if err != nil {
		appLog.Error("calendar render failed", err)
		http.Error(w, "failed to render calendar", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := calendarTmpl.Execute(&buf, page); err != nil {
		appLog.Error("calendar template failed", err)
		http.Error(w, "failed to render calendar", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
