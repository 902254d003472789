package mcp

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/standardbeagle/redefine/internal/security"
	"github.com/standardbeagle/redefine/internal/types"
)

// maxClassesPerCall bounds one batch.
const maxClassesPerCall = 4096

// ClassesParams names the class definitions of one loader. Classes are
// base64 encoded class files, Paths are class files readable by the server.
type ClassesParams struct {
	Loader  string   `json:"loader" validate:"required,max=256"`
	Classes []string `json:"classes,omitempty" validate:"omitempty,max=4096,dive,base64"`
	Paths   []string `json:"paths,omitempty" validate:"omitempty,max=4096,dive,required"`
}

// PlanParams identifies a pending plan.
type PlanParams struct {
	PlanID string `json:"plan_id" validate:"required,startswith=plan-"`
}

// StatusParams optionally narrows cache_status to one loader.
type StatusParams struct {
	Loader string `json:"loader,omitempty" validate:"omitempty,max=256"`
}

var validate = validator.New()

// decodeParams unmarshals raw tool arguments into v and validates them.
// Missing arguments decode as an empty object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return validate.Struct(v)
}

// load returns the bytes of every class named by p, inline classes first.
// Paths go through files, which anchors them at the project root.
func (p *ClassesParams) load(files *security.FileValidator) ([][]byte, error) {
	if len(p.Classes)+len(p.Paths) == 0 {
		return nil, errors.New("classes or paths is required")
	}
	if len(p.Classes)+len(p.Paths) > maxClassesPerCall {
		return nil, fmt.Errorf("at most %d classes per call", maxClassesPerCall)
	}
	out := make([][]byte, 0, len(p.Classes)+len(p.Paths))
	for i, c := range p.Classes {
		b, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			return nil, fmt.Errorf("classes[%d]: %w", i, err)
		}
		out = append(out, b)
	}
	for _, path := range p.Paths {
		b, err := files.ReadClassFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (p *ClassesParams) loaderID() types.LoaderID {
	return types.LoaderID(p.Loader)
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "max":
		return fmt.Sprintf("must have at most %s entries or characters", ve.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", ve.Param())
	case "base64":
		return "must be standard base64"
	default:
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}
