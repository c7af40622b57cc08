package embedded

import (
	_ "embed"
)

// Embed the static portions of the selector's system prompt. Per-daypart,
// per-track detail is assembled at runtime by internal/prompt.Builder.

//go:embed data/core_data/system_prompt.txt
var SystemPromptTxt []byte

//go:embed data/core_data/output_format_instructions.txt
var OutputFormatInstructionsTxt []byte

//go:embed data/core_data/tool_usage_instructions.txt
var ToolUsageInstructionsTxt []byte
