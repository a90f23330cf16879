package server

import (
	"html/template"
	"net/http"

	"eeglab/internal/coordinator"
	"eeglab/pkg/domain"
)

// reportTemplate renders one experiment as a printable lab report. It
// replaces the client-side print/export path.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Experiment.Title}} - Lab Report</title>
<style>
body { font-family: Georgia, serif; margin: 2rem auto; max-width: 52rem; color: #111; }
h1 { border-bottom: 2px solid #111; padding-bottom: .5rem; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { border: 1px solid #999; padding: .4rem .6rem; text-align: left; font-size: .9rem; }
th { background: #eee; }
.meta { color: #555; font-size: .9rem; }
</style>
</head>
<body>
<h1>{{.Experiment.Title}}</h1>
<p class="meta">Status: {{.Experiment.Status}} &middot; Started: {{.Experiment.StartDate}} &middot; Generated: {{.GeneratedAt}}</p>
<p>{{.Experiment.Description}}</p>
<h2>Recording Sessions ({{len .Experiment.Sessions}})</h2>
{{if .Experiment.Sessions}}
<table>
<tr><th>Date</th><th>Subject</th><th>Duration (min)</th><th>Sampling (Hz)</th><th>Channels</th><th>Technician</th><th>Notes</th></tr>
{{range .Experiment.Sessions}}
<tr><td>{{.Date}}</td><td>{{.SubjectID}}</td><td>{{.DurationMinutes}}</td><td>{{.SamplingRate}}</td><td>{{.ChannelCount}}</td><td>{{.TechnicianName}}</td><td>{{.Notes}}</td></tr>
{{end}}
</table>
{{else}}
<p>No sessions recorded yet.</p>
{{end}}
</body>
</html>
`))

type reportData struct {
	Experiment  domain.Experiment
	GeneratedAt string
}

// handleReport serves a printable HTML report for one experiment. Only the
// owner or an Admin may fetch it.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, _ *coordinator.Coordinator, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	exp, ok, err := s.store.GetExperiment(id)
	if err != nil {
		s.logger.Error("load experiment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load experiment")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	if user.Role != domain.RoleAdmin && exp.UserID != user.ID {
		s.audit(r, "experiment.report", "fail", "user_id", user.ID, "reason", "forbidden")
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = reportTemplate.Execute(w, reportData{
		Experiment:  exp,
		GeneratedAt: s.now().Format("2006-01-02 15:04"),
	})
	if err != nil {
		s.logger.Error("render report failed", "error", err)
	}
}
