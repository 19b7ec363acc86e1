package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailsprint/models"
)

func TestRenderTemplate(t *testing.T) {
	lead := models.Lead{
		Email:     "ana@corp.test",
		FirstName: "Ana",
		LastName:  "Silva",
		Company:   "Corp",
	}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"all placeholders", "{{first_name}} {{last_name}} at {{company}} ({{email}})", "Ana Silva at Corp (ana@corp.test)"},
		{"repeated placeholder", "{{first_name}}, {{first_name}}!", "Ana, Ana!"},
		{"unknown placeholder kept", "Dear {{salutation}} {{last_name}}", "Dear {{salutation}} Silva"},
		{"no placeholders", "plain text", "plain text"},
		{"empty template", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderTemplate(tt.tmpl, lead))
		})
	}
}

func TestRenderTemplateEmptyFields(t *testing.T) {
	lead := models.Lead{Email: "x@y.test"}
	assert.Equal(t, "Hi , greetings from ", RenderTemplate("Hi {{first_name}}, greetings from {{company}}", lead))
}
