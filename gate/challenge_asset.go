package gate

import (
	"bytes"
	_ "embed"
	"html/template"
)

//go:embed challenge.html
var challengeHTML string

// challengeTemplate wraps the precompiled asset. Parsed once at
// construction, not per request, per §4.6's expansion note.
type challengeTemplate struct {
	tmpl *template.Template
}

type challengePageData struct {
	Nonce string
}

func parseChallengeTemplate() (*challengeTemplate, error) {
	t, err := template.New("challenge").Parse(challengeHTML)
	if err != nil {
		return nil, err
	}
	return &challengeTemplate{tmpl: t}, nil
}

func (c *challengeTemplate) render(nonce string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, challengePageData{Nonce: nonce}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
