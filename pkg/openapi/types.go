package openapi

// Location is where a parameter travels in the HTTP request.
type Location string

const (
	InPath   Location = "path"
	InQuery  Location = "query"
	InHeader Location = "header"
	InBody   Location = "body"
)

// Schema primitive types used in tool signatures.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Spec is the normalized API description produced by Extract.
// It is read-only once built.
type Spec struct {
	Title       string
	Version     string
	Description string
	// BaseURL is the declared server URL, empty when the document declares none.
	BaseURL    string
	Operations []Operation
}

// Operation describes a single API operation.
type Operation struct {
	// ID is the operationId, or an identifier derived from method and path.
	ID string
	// Derived reports whether ID was derived rather than declared.
	Derived     bool
	Method      string
	Path        string
	Summary     string
	Description string
	Tags        []string
	Parameters  []Parameter
	Response    ResponseSummary
}

// Parameter is one named input of an operation.
type Parameter struct {
	Name        string
	In          Location
	Required    bool
	Type        string
	Items       string // element type when Type is array
	Description string
	Enum        []any
	// WholeBody marks the single body parameter that carries the entire
	// request body, as opposed to one property of an object body.
	WholeBody bool
	// Flattened marks parameters whose declared schema (nested objects,
	// oneOf/anyOf/allOf, type unions) was reduced to a generic object.
	Flattened bool
}

// ResponseSummary summarizes the first successful response of an operation.
type ResponseSummary struct {
	Status    string
	MediaType string
	Type      string
}

// Param returns the parameter with the given name, if present.
func (o Operation) Param(name string) (Parameter, bool) {
	for _, p := range o.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Operation returns the operation with the given identifier.
func (s *Spec) Operation(id string) (Operation, bool) {
	for _, op := range s.Operations {
		if op.ID == id {
			return op, true
		}
	}
	return Operation{}, false
}
