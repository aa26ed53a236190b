package server

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stockrecs/internal/jobs"
	"stockrecs/internal/stock"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="pl">
<head>
<meta charset="utf-8">
<title>Rekomendacje giełdowe</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
th { background: #f0f0f0; }
.status { color: #555; margin-bottom: 1em; }
</style>
</head>
<body>
<h1>Rekomendacje giełdowe</h1>
<div class="status">
{{- if .Active}}Run {{.Active.ID}} is {{.Active.State}}.{{else}}No run in progress.{{end}}
{{- if not .NextRun.IsZero}} Next scheduled run: {{.NextRun.Format "2006-01-02 15:04"}}.{{end}}
</div>
{{- if .Records}}
<table>
<thead><tr><th>Spółka</th><th>Rekomendacja</th><th>C/Z</th><th>Cena</th><th>Rekomendacja MSN</th><th>Analitycy</th></tr></thead>
<tbody>
{{- range .Records}}
<tr><td>{{.Name}}</td><td>{{.BaseRecommendation}}</td><td>{{.Extra}}</td><td>{{.Price}}</td><td>{{.RecommendationLabel}}</td><td>{{.AnalystCount}}</td></tr>
{{- end}}
</tbody>
</table>
{{- else}}
<p>No results yet.</p>
{{- end}}
</body>
</html>
`))

type indexData struct {
	Records []stock.ResultRecord
	Active  *jobs.Job
	NextRun time.Time
}

// handleIndex renders the published results as an HTML table.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{Records: s.loadResults().Records()}
	if s.cfg.Runs != nil {
		if job, ok := s.cfg.Runs.Active(); ok {
			data.Active = &job
		}
	}
	if s.cfg.NextRun != nil {
		data.NextRun = s.cfg.NextRun()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("Failed to render index")
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": s.cfg.Version,
		"service": "stockrecs",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleResults returns the published results; an unreadable store is an
// empty list.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.loadResults())
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "runs are not enabled")
		return
	}

	job, err := s.cfg.Runs.Submit("manual")
	switch {
	case errors.Is(err, jobs.ErrRunInProgress):
		s.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
			"job":   job,
		})
	case errors.Is(err, jobs.ErrShutdown):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.log.Error().Err(err).Msg("Failed to submit run")
		s.writeError(w, http.StatusInternalServerError, "failed to submit run")
	default:
		w.Header().Set("Location", "/api/runs/"+job.ID)
		s.writeJSON(w, http.StatusAccepted, job)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeJSON(w, http.StatusOK, []jobs.Job{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Runs.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
		return
	}

	job, err := s.cfg.Runs.Get(chi.URLParam(r, "id"))
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) loadResults() *stock.ResultSet {
	if s.cfg.Results == nil {
		return stock.NewResultSet()
	}
	return s.cfg.Results.Load()
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
