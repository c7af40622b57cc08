package prompt

import (
	"strings"

	"github.com/troykelly/playlistgen/pkg/embedded"
)

// Loader exposes the static, embedded portions of the selector's prompt.
type Loader struct{}

func NewPromptLoader() *Loader {
	return &Loader{}
}

// GetSystemPrompt loads the base music-director role description.
func (l *Loader) GetSystemPrompt() (string, error) {
	return strings.TrimSpace(string(embedded.SystemPromptTxt)), nil
}

// GetOutputFormatInstructions loads the terminal JSON array contract.
func (l *Loader) GetOutputFormatInstructions() (string, error) {
	return strings.TrimSpace(string(embedded.OutputFormatInstructionsTxt)), nil
}

// GetToolUsageInstructions loads guidance on which tool to reach for first.
func (l *Loader) GetToolUsageInstructions() (string, error) {
	return strings.TrimSpace(string(embedded.ToolUsageInstructionsTxt)), nil
}
