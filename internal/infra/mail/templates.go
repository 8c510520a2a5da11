package mail

import (
	"bytes"
	"fmt"
	"html/template"

	domainmail "perm_tracker/internal/domain/mail"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#1f2933">
{{template "content" .}}
<p style="font-size:12px;color:#7b8794">
Manage email preferences at <a href="{{.BaseURL}}/settings/notifications">{{.BaseURL}}/settings/notifications</a>.
</p>
</body></html>{{end}}`

const notificationContent = `{{define "content"}}
<h2>{{.Data.Title}}</h2>
{{if .Data.CaseLabel}}<p><strong>{{.Data.CaseLabel}}</strong></p>{{end}}
<p>{{.Data.Message}}</p>
{{if .Data.DeadlineDate}}<p>Deadline: {{.Data.DeadlineDate}}</p>{{end}}
{{if .Data.CaseID}}<p><a href="{{.BaseURL}}/cases/{{.Data.CaseID}}">Open case</a></p>{{end}}
{{end}}`

const digestContent = `{{define "content"}}
<h2>Your PERM deadlines for the week of {{.Data.WeekOf}}</h2>
{{if .Data.OverdueCount}}<p style="color:#cf1124"><strong>{{.Data.OverdueCount}} overdue deadline(s) need attention.</strong></p>{{end}}
{{if .Data.UpcomingDeadlines}}
<h3>Upcoming deadlines</h3>
<ul>
{{range .Data.UpcomingDeadlines}}<li><a href="{{$.BaseURL}}/cases/{{.CaseID}}">{{.CaseLabel}}</a>: {{.Label}} on {{.Date}} ({{.DaysUntil}} days)</li>
{{end}}</ul>
{{end}}
{{if .Data.UnreadCount}}
<h3>{{.Data.UnreadCount}} unread notification(s)</h3>
<ul>
{{range .Data.UnreadNotifications}}<li>[{{.Priority}}] {{.Title}} ({{.Created}})</li>
{{end}}</ul>
{{end}}
{{end}}`

// templates holds one parsed template per kind. All kinds except the digest
// share the single-notification body.
var templates = func() map[domainmail.TemplateKind]*template.Template {
	base := template.Must(template.New("layout").Parse(layout))
	single := template.Must(template.Must(base.Clone()).Parse(notificationContent))
	digest := template.Must(template.Must(base.Clone()).Parse(digestContent))
	return map[domainmail.TemplateKind]*template.Template{
		domainmail.TemplateDeadlineReminder: single,
		domainmail.TemplateStatusChange:     single,
		domainmail.TemplateRFIAlert:         single,
		domainmail.TemplateRFEAlert:         single,
		domainmail.TemplateAutoClosure:      single,
		domainmail.TemplateSystem:           single,
		domainmail.TemplateWeeklyDigest:     digest,
	}
}()

type view struct {
	BaseURL string
	Data    any
}

// Render produces the subject and HTML body for kind.
func Render(kind domainmail.TemplateKind, payload any, baseURL string) (subject, body string, err error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("no email template for %q", kind)
	}

	switch p := payload.(type) {
	case domainmail.NotificationPayload:
		subject = p.Title
	case *domainmail.NotificationPayload:
		subject = p.Title
	case domainmail.DigestPayload:
		subject = "Your weekly PERM deadline digest"
	case *domainmail.DigestPayload:
		subject = "Your weekly PERM deadline digest"
	default:
		return "", "", fmt.Errorf("unsupported email payload %T", payload)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", view{BaseURL: baseURL, Data: payload}); err != nil {
		return "", "", fmt.Errorf("render %s email: %w", kind, err)
	}
	return "[PERM Tracker] " + subject, buf.String(), nil
}
