// Package openapi loads OpenAPI documents and extracts one descriptor per
// HTTP operation.
//
// Loading accepts a file path, an http(s) URL or an in-memory mapping, in JSON
// or YAML. Swagger 2.0 documents are converted to OpenAPI 3 before anything
// else looks at them, so the extractor only deals with one shape.
//
// Typical use:
//
//	doc, err := openapi.Load(ctx, openapi.ParseSource("./openapi.yaml"))
//	if err != nil { ... }
//	spec, err := openapi.Extract(doc)
//	for _, op := range spec.Operations { ... }
//
// Operations come out in declaration order. Identifiers are unique within a
// Spec; a collision is reported as a validation error instead of one
// operation silently replacing another.
package openapi
