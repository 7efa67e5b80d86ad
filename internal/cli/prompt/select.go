package prompt

import (
	"github.com/manifoldco/promptui"
)

// SelectOption represents an item in a selection list.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Select prompts the user to pick one option and returns its Value.
// The cursor starts on the option whose Value equals current.
func Select(label string, options []SelectOption, current string) (string, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label | white }}",
		Selected: "* {{ .Label | green }}",
	}
	if len(options) > 0 && options[0].Description != "" {
		templates.Details = `
{{ "Server:" | faint }}	{{ .Description }}`
	}

	cursor := 0
	for i, opt := range options {
		if opt.Value == current {
			cursor = i
			break
		}
	}

	p := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: templates,
		Size:      10,
		CursorPos: cursor,
	}

	i, _, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return options[i].Value, nil
}
