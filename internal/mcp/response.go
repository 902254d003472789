package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/runtime"
	"github.com/standardbeagle/redefine/internal/security"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse creates an error response that carries suggestions
// for the errors a client can act on.
//
// Tool errors are reported inside the result with IsError set, not as
// protocol errors, so the calling model can see them and correct itself.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		fields := make(map[string]string, len(valErrs))
		messages := make([]string, 0, len(valErrs))
		for _, ve := range valErrs {
			msg := formatValidationError(ve)
			fields[ve.Field()] = msg
			messages = append(messages, ve.Field()+": "+msg)
		}
		errorData["error"] = "invalid parameters: " + strings.Join(messages, "; ")
		errorData["fields"] = fields
	}

	if suggestions := generateErrorSuggestions(err); len(suggestions) > 0 {
		errorData["suggestions"] = suggestions
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

// generateErrorSuggestions maps the engine's error kinds to next steps
func generateErrorSuggestions(err error) []string {
	var (
		structural *rerrors.UnsupportedStructuralChangeError
		stale      *rerrors.StalePlanError
		contract   *rerrors.ContractViolationError
		naming     *rerrors.NameExtractionError
	)
	switch {
	case errors.As(err, &stale):
		return []string{"Another commit changed loader " + stale.Loader.String() + " since the plan was made; call plan_redefinition again"}
	case errors.As(err, &structural):
		return []string{
			"Include every nested type of the batch in classes or paths",
			"Or define the missing nested types with define_types first",
		}
	case errors.As(err, &contract):
		return []string{"Every nested type in a batch must be declared by its enclosing type in the same batch"}
	case errors.As(err, &naming):
		return []string{"Check that each entry is a complete class file (magic 0xCAFEBABE)"}
	case errors.Is(err, runtime.ErrAlreadyDefined):
		return []string{"Use redefine to replace a type that is already defined"}
	case errors.Is(err, security.ErrOutsideRoot):
		return []string{"Pass paths inside the project root, or send the bytes base64 encoded in classes"}
	case errors.Is(err, security.ErrNotClassFile), errors.Is(err, security.ErrTooLarge):
		return []string{"Paths must name compiled .class files"}
	case errors.Is(err, errPlanNotFound):
		return []string{"Plans are single use and only the most recent ones are kept; call plan_redefinition again"}
	}
	return nil
}
