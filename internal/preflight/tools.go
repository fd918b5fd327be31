package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"murmur/internal/asr"
	"murmur/internal/config"
)

// Tool describes one external binary murmur shells out to.
type Tool struct {
	Name        string
	Command     string
	Description string
}

// ToolStatus reports the availability of one Tool.
type ToolStatus struct {
	Tool
	Available bool
	Detail    string
}

// Result converts the tool status into the common check result shape.
func (s ToolStatus) Result() Result {
	if s.Available {
		return Result{Name: s.Name, Passed: true, Detail: s.Command}
	}
	return Result{Name: s.Name, Detail: s.Detail}
}

// requiredTools lists the binaries the configured setup shells out to.
// whisper.cpp only appears when a local provider kind is selected.
func requiredTools(cfg *config.Config) []Tool {
	tools := []Tool{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for audio extraction",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
		},
	}
	if kind, err := asr.ParseKind(cfg.Transcription.Provider); err == nil && kind.Local() {
		tools = append(tools, Tool{
			Name:        "whisper.cpp",
			Command:     cfg.WhisperBinary(),
			Description: "Required for local transcription",
		})
	}
	return tools
}

// CheckTools resolves each required binary and reports availability.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckTools(cfg *config.Config) []ToolStatus {
	tools := requiredTools(cfg)
	statuses := make([]ToolStatus, 0, len(tools))
	for _, tool := range tools {
		status := ToolStatus{Tool: tool}
		command := strings.TrimSpace(tool.Command)
		if command == "" {
			status.Detail = "command not configured"
			statuses = append(statuses, status)
			continue
		}
		if _, err := exec.LookPath(command); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", command)
			statuses = append(statuses, status)
			continue
		}
		status.Available = true
		statuses = append(statuses, status)
	}
	return statuses
}
