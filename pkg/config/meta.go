package config

// Field metadata describes a tool's configurable settings so an API
// consumer can render a settings form without knowing the tool.

type FieldType string

const (
	FieldTypeNumber   FieldType = "number"
	FieldTypeText     FieldType = "text"
	FieldTypeCheckbox FieldType = "checkbox"
)

type Field struct {
	Name         string    `json:"name"`
	Type         FieldType `json:"type"`
	Label        string    `json:"label"`
	DefaultValue any       `json:"defaultValue"`
	Placeholder  string    `json:"placeholder,omitempty"`
	HelpText     string    `json:"helpText,omitempty"`
	Required     bool      `json:"required,omitempty"`
	Min          float32   `json:"min,omitempty"`
	Max          float32   `json:"max,omitempty"`
	Step         float32   `json:"step,omitempty"`
}

type FieldGroup struct {
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	Fields []Field `json:"fields"`
}
