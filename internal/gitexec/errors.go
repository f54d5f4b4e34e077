package gitexec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	CodeGitUnavailable    = "E_GIT_UNAVAILABLE"
	CodeValidation        = "E_VALIDATION"
	CodeRepoNotResolved   = "E_REPO_NOT_RESOLVED"
	CodeRepoNotFound      = "E_REPO_NOT_FOUND"
	CodeRepoNotGit        = "E_REPO_NOT_GIT"
	CodeRepoOutOfScope    = "E_REPO_OUT_OF_SCOPE"
	CodeInvalidPath       = "E_INVALID_PATH"
	CodeOpInProgress      = "E_OP_IN_PROGRESS"
	CodeNoOperation       = "E_NO_OPERATION"
	CodePatchInvalid      = "E_PATCH_INVALID"
	CodeCommandFailed     = "E_COMMAND_FAILED"
	CodeBinaryUnsupported = "E_BINARY_UNSUPPORTED"
	CodeRenameUndetected  = "E_RENAME_UNDETECTED"
	CodeUnknown           = "E_UNKNOWN"
)

// BindingError is the normalized error contract returned across bindings.
type BindingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *BindingError) Error() string {
	if e == nil {
		return ""
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","message":"%s","details":"%s"}`, e.Code, sanitizeJSONText(e.Message), sanitizeJSONText(e.Details))
	}
	return string(payload)
}

func NewBindingError(code, message, details string) *BindingError {
	return &BindingError{
		Code:    strings.TrimSpace(code),
		Message: strings.TrimSpace(message),
		Details: strings.TrimSpace(details),
	}
}

// AsBindingError unwraps a BindingError from err, also recognizing the
// JSON form produced by Error(). Returns nil when err carries no contract.
func AsBindingError(err error) *BindingError {
	if err == nil {
		return nil
	}

	var bindingErr *BindingError
	if errors.As(err, &bindingErr) && bindingErr != nil {
		return bindingErr
	}

	raw := strings.TrimSpace(err.Error())
	if raw == "" {
		return nil
	}

	var parsed BindingError
	if parseErr := json.Unmarshal([]byte(raw), &parsed); parseErr == nil && strings.TrimSpace(parsed.Code) != "" {
		return &parsed
	}

	return nil
}

// NormalizeBindingError guarantees a non-nil contract for any non-nil error.
func NormalizeBindingError(err error) *BindingError {
	if err == nil {
		return nil
	}

	if bindingErr := AsBindingError(err); bindingErr != nil {
		if strings.TrimSpace(bindingErr.Message) == "" {
			bindingErr.Message = "Git operation failed"
		}
		if strings.TrimSpace(bindingErr.Code) == "" {
			bindingErr.Code = CodeUnknown
		}
		return bindingErr
	}

	return NewBindingError(
		CodeUnknown,
		"Git operation failed",
		err.Error(),
	)
}

func sanitizeJSONText(input string) string {
	output := strings.ReplaceAll(input, `"`, `'`)
	output = strings.ReplaceAll(output, "\n", " ")
	return strings.TrimSpace(output)
}
