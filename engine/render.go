package engine

import (
	"strings"

	"mailsprint/models"
)

// RenderTemplate substitutes lead placeholders into a subject or body
// template. Unknown placeholders are left untouched; empty lead fields
// render as empty strings.
func RenderTemplate(tmpl string, lead models.Lead) string {
	r := strings.NewReplacer(
		"{{first_name}}", lead.FirstName,
		"{{last_name}}", lead.LastName,
		"{{company}}", lead.Company,
		"{{email}}", lead.Email,
	)
	return r.Replace(tmpl)
}
