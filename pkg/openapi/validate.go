package openapi

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Validate runs structural validation of the document. Extraction does not
// require it; the CLI exposes it as a separate command.
func Validate(ctx context.Context, doc *Document) error {
	if doc == nil || doc.t == nil {
		return errmodel.Validation("invalid_document", "document is nil", nil)
	}
	if err := doc.t.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return errmodel.New(errmodel.CategoryValidation, "invalid_document", "document failed validation",
			map[string]any{"source": doc.source}, err)
	}
	return nil
}
