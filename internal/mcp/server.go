package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/atlas/internal/entitlement"
	"github.com/hpungsan/atlas/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"credits", "capture", "analysis", "history", "paywall"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"credits_balance": {
		def:     balanceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBalance },
	},
	"capture_image": {
		def:     captureImageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureImage },
	},
	"capture_document": {
		def:     captureDocumentToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureDocument },
	},
	"analysis_fetch": {
		def:     fetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetch },
	},
	"analysis_retry": {
		def:     retryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRetry },
	},
	"analysis_abandon": {
		def:     abandonToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAbandon },
	},
	"analysis_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"history_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"history_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"paywall_offer": {
		def:     offerToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOffer },
	},
	"paywall_resolve": {
		def:     resolveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResolve },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "paywall_offer" → "paywall").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with ATLAS tools registered. The
// stdio client is one session, so every tool shares gate.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(env *ops.Env, gate *entitlement.Gate, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"atlas",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(env, gate)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(env.Config.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range env.Config.DisabledTools {
		disabled[name] = true
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(env *ops.Env, gate *entitlement.Gate, version string) error {
	return server.ServeStdio(NewServer(env, gate, version))
}
