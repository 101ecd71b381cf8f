package schemas

// FieldType is the declared shape of a contract field
type FieldType string

// FieldType constants
const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeInteger   FieldType = "integer"
	TypeBool      FieldType = "boolean"
	TypeEnum      FieldType = "enum"
	TypeTimestamp FieldType = "timestamp"
	TypeObject    FieldType = "object"
	TypeArray     FieldType = "array"
	// TypeAny accepts any JSON object without inspecting its members
	TypeAny FieldType = "any"
)

// Field declares one contract field
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Enum     []string
	Range    *Bounds
	// Fields is the sub-contract of an object field
	Fields []Field
	// Items is the element declaration of an array field
	Items *Field
	// MinItems is the minimum array length
	MinItems int
	// UniqueBy names an object member whose value must differ across array elements
	UniqueBy string
}

// Contract is the required-field set of one stage output
type Contract struct {
	Stage  string
	Fields []Field
}

// Base field names carried by every stage output
const (
	FieldAgent      = "agent"
	FieldTimestamp  = "timestamp"
	FieldConfidence = "confidence"
)

// BaseFields returns the fields every stage output must carry
func BaseFields() []Field {
	return []Field{
		{Name: FieldAgent, Type: TypeString, Required: true},
		{Name: FieldTimestamp, Type: TypeTimestamp, Required: true},
		{Name: FieldConfidence, Type: TypeNumber, Required: true, Range: Range(0, 1)},
	}
}

// NewContract builds a stage contract with the base fields prepended
func NewContract(stage string, fields ...Field) Contract {
	all := append(BaseFields(), fields...)
	return Contract{Stage: stage, Fields: all}
}

// Range returns inclusive bounds
func Range(lo, hi float64) *Bounds {
	return &Bounds{Min: &lo, Max: &hi}
}

// AtLeast returns a lower bound only
func AtLeast(lo float64) *Bounds {
	return &Bounds{Min: &lo}
}

// Required builds a required field
func Required(name string, t FieldType) Field {
	return Field{Name: name, Type: t, Required: true}
}

// Optional builds an optional field
func Optional(name string, t FieldType) Field {
	return Field{Name: name, Type: t}
}

// RequiredEnum builds a required enumerated string field
func RequiredEnum(name string, allowed ...string) Field {
	return Field{Name: name, Type: TypeEnum, Required: true, Enum: allowed}
}

// RequiredObject builds a required nested object field
func RequiredObject(name string, fields ...Field) Field {
	return Field{Name: name, Type: TypeObject, Required: true, Fields: fields}
}

// RequiredList builds a required array field whose elements match item
func RequiredList(name string, item Field, minItems int) Field {
	return Field{Name: name, Type: TypeArray, Required: true, Items: &item, MinItems: minItems}
}

// OptionalList builds an optional array field whose elements match item
func OptionalList(name string, item Field) Field {
	return Field{Name: name, Type: TypeArray, Items: &item}
}

// UniqueList builds a required array of objects keyed by the member key
func UniqueList(name, key string, item Field, minItems int) Field {
	f := RequiredList(name, item, minItems)
	f.UniqueBy = key
	return f
}

// Element builds an unnamed array element declaration
func Element(t FieldType, fields ...Field) Field {
	return Field{Type: t, Fields: fields}
}
