package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/fiffu/trailerwatch/lib/models"
)

var (
	//go:embed trailer.html
	trailerHTML     string
	trailerTemplate = template.Must(template.New("trailer.html").Parse(trailerHTML))
)

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

type TrailerEmailFormat struct {
	Event   *models.DistributionEvent
	BotName string
}

func (ef *TrailerEmailFormat) Subject() string {
	return fmt.Sprintf("%s: new trailer for %s", ef.BotName, ef.Event.Movie.Title)
}

func (ef *TrailerEmailFormat) Body() string {
	return mustFillTemplate(trailerTemplate, ef)
}
