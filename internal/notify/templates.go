package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"sessionbooking/internal/digest"
)

const (
	tmplRecommendation = "recommendation"
	tmplPosting        = "posting"
)

var messageTemplates = template.Must(template.New("notify").Parse(`
{{- define "recommendation" -}}
{{.CourseName}}: {{.StudentName}} was recommended for the {{.SkillTest}}
{{- with .InstructorName}} by {{.}}{{end}}.

Current exercise: {{.Exercise}}
Exercise: {{.ExerciseURL}}
Bookings: {{.BookingURL}}
Assignments: {{.AssignURL}}
Course: {{.CourseURL}}
{{- end}}

{{- define "posting" -}}
{{.CourseName}}: {{.StudentName}} posted new availability.
{{.PostingsText}}

Next exercise: {{.Exercise}}
Book {{.FirstName}}: {{.BookingURL}}
Exercise: {{.ExerciseURL}}
Assignments: {{.AssignURL}}
Course: {{.CourseURL}}
{{- end}}
`))

func renderRecommendation(p digest.RecommendationPayload) (string, error) {
	return render(tmplRecommendation, p)
}

func renderPosting(p digest.PostingPayload) (string, error) {
	return render(tmplPosting, p)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := messageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s message: %w", name, err)
	}
	return buf.String(), nil
}
