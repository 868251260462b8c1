package console

import (
	"fmt"
	"strings"
)

// Tone is the colour of a reply in chat clients.
type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// Field is one labelled value of a reply.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Reply is the structured response to a console command.
type Reply struct {
	Title   string  `json:"title"`
	Tone    Tone    `json:"tone"`
	Message string  `json:"message,omitempty"`
	Fields  []Field `json:"fields,omitempty"`
	Footer  string  `json:"footer,omitempty"`
	// Ticket is set by nuke so callers can confirm without parsing text.
	Ticket string `json:"ticket,omitempty"`
	// Failed is set when the command did not run or was rejected.
	Failed bool `json:"failed,omitempty"`
}

func (r *Reply) add(name, value string, inline bool) {
	r.Fields = append(r.Fields, Field{Name: name, Value: value, Inline: inline})
}

// Field returns the value of the named field, or "" if absent.
func (r Reply) Field(name string) string {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

var toneMarks = map[Tone]string{
	ToneInfo:    "*",
	ToneSuccess: "+",
	ToneWarning: "!",
	ToneDanger:  "x",
}

// Text renders the reply for a terminal.
func (r Reply) Text() string {
	var b strings.Builder
	mark := toneMarks[r.Tone]
	if mark == "" {
		mark = "*"
	}
	fmt.Fprintf(&b, "[%s] %s\n", mark, r.Title)
	if r.Message != "" {
		fmt.Fprintf(&b, "    %s\n", r.Message)
	}
	width := 0
	for _, f := range r.Fields {
		if len(f.Name) > width {
			width = len(f.Name)
		}
	}
	for _, f := range r.Fields {
		fmt.Fprintf(&b, "    %-*s  %s\n", width, f.Name, f.Value)
	}
	if r.Footer != "" {
		fmt.Fprintf(&b, "    -- %s\n", r.Footer)
	}
	return b.String()
}
