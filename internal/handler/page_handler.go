package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"classhub-gateway/internal/middleware"
	"classhub-gateway/internal/observability"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="csrf-header" content="{{.HeaderName}}">
<meta name="csrf-token" content="{{.Token}}">
<title>ClassHub</title>
</head>
<body>
{{if .Authenticated}}<p>Signed in as {{.Role}}.</p>{{else}}<p>Sign in through the ClassHub app to continue.</p>{{end}}
</body>
</html>
`))

type landingData struct {
	Authenticated bool
	Role          string
	Token         string
	HeaderName    string
}

// PageHandler renders the landing page served when no upstream application
// is configured.
type PageHandler struct {
	headerName string
}

func NewPageHandler(headerName string) *PageHandler {
	return &PageHandler{headerName: headerName}
}

// Landing embeds the token the CSRF gate issued for this navigation so the
// page's own scripts can echo it.
func (h *PageHandler) Landing(w http.ResponseWriter, r *http.Request) {
	data := landingData{
		Token:      middleware.CSRFTokenFromContext(r.Context()),
		HeaderName: h.headerName,
	}
	if session, ok := middleware.GetSession(r.Context()); ok {
		data.Authenticated = true
		data.Role = session.Role
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := landingTemplate.Execute(w, data); err != nil {
		observability.FromContext(r.Context()).Error("failed to render landing page", slog.String("error", err.Error()))
	}
}
