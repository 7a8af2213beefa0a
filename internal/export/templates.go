package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"recruitcrm/api/internal/store"
)

var profileTemplate = template.Must(template.New("profile").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
	"yesNo": func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	},
}).Parse(profileHTML))

// ProfileField is one labelled row of the profile table.
type ProfileField struct {
	Label string
	Value string
}

// ProfileData holds data for the profile template.
type ProfileData struct {
	Name        string
	Headline    string
	Fields      []ProfileField
	Skills      []string
	Summary     string
	Notes       string
	DateAdded   time.Time
	Relocate    bool
	GeneratedAt time.Time
}

// ProfileFromCandidate flattens a candidate into template rows, skipping
// empty values.
func ProfileFromCandidate(c store.Candidate, now time.Time) ProfileData {
	headline := c.CurrentTitle
	if c.CurrentCompany != "" {
		if headline != "" {
			headline += " at "
		}
		headline += c.CurrentCompany
	}

	rows := []ProfileField{
		{"Email", c.Email},
		{"Phone", c.Phone},
		{"Location", c.Location},
		{"LinkedIn", c.LinkedInURL},
		{"Experience", c.YearsExperience},
		{"Current salary", c.CurrentSalary},
		{"Expected salary", c.ExpectedSalary},
		{"Notice period", c.NoticePeriod},
		{"Available from", c.AvailabilityDate},
		{"Education", c.Education},
		{"Languages", c.Languages},
	}
	fields := rows[:0]
	for _, f := range rows {
		if strings.TrimSpace(f.Value) != "" {
			fields = append(fields, f)
		}
	}

	var skills []string
	for _, s := range strings.Split(c.Skills, ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}

	return ProfileData{
		Name:        c.FullName(),
		Headline:    headline,
		Fields:      fields,
		Skills:      skills,
		Summary:     c.Summary,
		Notes:       c.Notes,
		DateAdded:   c.DateAdded,
		Relocate:    c.WillingToRelocate,
		GeneratedAt: now,
	}
}

// RenderProfileHTML renders the profile template with provided data
func RenderProfileHTML(data ProfileData) (string, error) {
	var buf bytes.Buffer
	if err := profileTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return buf.String(), nil
}

const profileHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.4rem; margin-bottom: 0.2rem; }
    .headline { color: #555; font-size: 1.1em; margin-top: 0; }
    table { border-collapse: collapse; width: 100%; margin: 1.5rem 0; }
    th { text-align: left; width: 35%; color: #666; font-weight: normal; padding: 0.3rem 0; }
    td { padding: 0.3rem 0; }
    .skill { display: inline-block; background: #eef; border-radius: 3px; padding: 0.1rem 0.5rem; margin: 0.15rem; }
    .meta { color: #888; font-size: 0.8em; margin-top: 3rem; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  {{if .Headline}}<p class="headline">{{.Headline}}</p>{{end}}
  <table>
    {{range .Fields}}<tr><th>{{.Label}}</th><td>{{.Value}}</td></tr>
    {{end}}<tr><th>Willing to relocate</th><td>{{yesNo .Relocate}}</td></tr>
  </table>
  {{if .Skills}}<h2>Skills</h2>
  <div>{{range .Skills}}<span class="skill">{{.}}</span>{{end}}</div>{{end}}
  {{if .Summary}}<h2>Summary</h2>
  <p>{{.Summary}}</p>{{end}}
  {{if .Notes}}<h2>Notes</h2>
  <p>{{.Notes}}</p>{{end}}
  <div class="meta">Added {{formatDate .DateAdded "Jan 2, 2006"}} | Generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04"}}</div>
</body>
</html>`
