package fetch

import (
	"bytes"
	"fmt"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"wte/config"
	"wte/novel"
	"wte/shelf"
)

// Values is a struct that holds variables we make available for template expansion
type Values struct {
	Context string
	Title   string
	Author  string
	Source  string
	ID      int
	Handle  string
	// designations of the first and last chapter, see chapterDesignation
	First string
	Last  string
	// 1-based chapter numbers
	Start int
	End   int
	Total int
}

func newValues(meta novel.Metadata, story shelf.Story, first, last string, start, end int) Values {
	return Values{
		Title:  meta.Title,
		Author: meta.Author,
		Source: meta.SourceURI,
		ID:     story.ID,
		Handle: story.Handle,
		First:  first,
		Last:   last,
		Start:  start + 1,
		End:    end + 1,
		Total:  meta.ChapterCount,
	}
}

func expandTemplate(name config.TemplateFieldName, field string, values Values) (string, error) {
	funcMap := sprig.FuncMap()

	tmpl, err := template.New(string(name)).Funcs(funcMap).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values.Context = string(name)

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
