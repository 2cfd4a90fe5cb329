package schema

// ShowCondition controls when an approval node's attached form is shown.
type ShowCondition string

const (
	ShowWhenApproved ShowCondition = "TRUE"
	ShowWhenRejected ShowCondition = "FALSE"
	ShowAlways       ShowCondition = "BOTH"
)

// FieldKind is the input widget kind of a free-form field.
type FieldKind string

const (
	FieldSelect   FieldKind = "select"
	FieldText     FieldKind = "text"
	FieldNumber   FieldKind = "number"
	FieldLongText FieldKind = "longtext"
)

// FormDescriptor is the parsed, typed form of an action node's attachedForm
// mini-schema. Raw descriptors are decoded and repaired by internal/forms;
// consumers only ever see this normalized shape.
type FormDescriptor struct {
	ShowCondition ShowCondition
	// Fields keeps declaration order so inspectors render deterministically.
	Fields []FormField
}

// FormField is one declared field of an attached form.
type FormField struct {
	Name    string
	Kind    FieldKind
	Options []string // select fields only
	Default string
}

// Field returns the declared field with the given name, or nil.
func (d *FormDescriptor) Field(name string) *FormField {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}
