package mcp

import "github.com/mark3labs/mcp-go/mcp"

var balanceToolDef = mcp.NewTool("credits_balance",
	mcp.WithDescription("Show the remaining daily credits, the reset time and whether the session is unlimited."),
)

var captureImageToolDef = mcp.NewTool("capture_image",
	mcp.WithDescription("Capture an image (a photographed question) and start its analysis. "+
		"Uses one credit on success. An empty path counts as a cancelled pick and uses nothing. "+
		"When credits are exhausted the result is decision=redirect_to_paywall with the offer."),
	mcp.WithString("path", mcp.Description("Path of a PNG, JPEG, GIF, WebP, BMP or TIFF image directly inside an allowed_paths directory")),
	mcp.WithNumber("wait_seconds", mcp.Description("Wait up to this many seconds for the answer (max 60)")),
)

var captureDocumentToolDef = mcp.NewTool("capture_document",
	mcp.WithDescription("Capture a PDF document and start its analysis. "+
		"Uses one credit on success. An empty path counts as a cancelled pick and uses nothing."),
	mcp.WithString("path", mcp.Description("Path of a PDF document directly inside an allowed_paths directory")),
	mcp.WithNumber("wait_seconds", mcp.Description("Wait up to this many seconds for the answer (max 60)")),
)

var fetchToolDef = mcp.NewTool("analysis_fetch",
	mcp.WithDescription("Fetch an analysis by ID: pending with loading text, or the finished AI answer, or the failure."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Analysis ID")),
	mcp.WithNumber("wait_seconds", mcp.Description("Wait up to this many seconds while pending (max 60)")),
	mcp.WithString("section", mcp.Description("Return only this report section, e.g. \"Final Answer\"")),
	mcp.WithBoolean("include_text", mcp.Description("Include the report text (default true)")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted analyses")),
)

var retryToolDef = mcp.NewTool("analysis_retry",
	mcp.WithDescription("Re-run a failed or abandoned analysis on the same capture. Free: no credit is used."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Analysis ID")),
)

var abandonToolDef = mcp.NewTool("analysis_abandon",
	mcp.WithDescription("Stop waiting for a pending analysis. Its late result is discarded; retrying is free."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Analysis ID")),
)

var deleteToolDef = mcp.NewTool("analysis_delete",
	mcp.WithDescription("Soft-delete an analysis and its cached capture. The credit is not refunded."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Analysis ID")),
)

var listToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List past analyses, newest first."),
	mcp.WithString("kind", mcp.Enum("image", "document"), mcp.Description("Filter by capture kind")),
	mcp.WithString("status", mcp.Enum("pending", "succeeded", "failed", "abandoned"), mcp.Description("Filter by status")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted analyses")),
)

var exportToolDef = mcp.NewTool("history_export",
	mcp.WithDescription("Export the analysis history to a JSONL file."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path (default: ~/.atlas/exports/history-<timestamp>.jsonl)")),
	mcp.WithString("kind", mcp.Enum("image", "document"), mcp.Description("Filter by capture kind")),
	mcp.WithString("status", mcp.Enum("pending", "succeeded", "failed", "abandoned"), mcp.Description("Filter by status")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted analyses")),
)

var offerToolDef = mcp.NewTool("paywall_offer",
	mcp.WithDescription("Show the premium subscription offer."),
)

var resolveToolDef = mcp.NewTool("paywall_resolve",
	mcp.WithDescription("Answer the paywall: subscribe (demo purchase, unlocks unlimited captures) or close."),
	mcp.WithString("choice", mcp.Required(), mcp.Enum("subscribe", "close"), mcp.Description("subscribe or close")),
)
