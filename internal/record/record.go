package record

// Analysis is one captured piece of content and the analysis run on it.
// A row is written as soon as the capture is charged, so every charged
// credit has a record even if the analysis never finishes.
type Analysis struct {
	// ID is a ULID; it doubles as the capture handle ID
	ID string

	// Kind is "image" or "document"
	Kind string

	// DisplayName is the picked file name, or a default for unnamed images
	DisplayName string

	// MediaType is the detected content type (image/png, application/pdf, ...)
	MediaType string

	// ContentPath is the cached copy of the content
	ContentPath string

	// ContentBytes is the size of the cached copy
	ContentBytes int64

	// Width and Height are set for images
	Width  int
	Height int

	// Status is pending, succeeded, failed or abandoned
	Status string

	// ReportText is the markdown report (empty until succeeded)
	ReportText string

	// ReportChars is the report length in runes
	ReportChars int

	// ErrorCode and ErrorMessage describe the last failure (nullable)
	ErrorCode    *string
	ErrorMessage *string

	// Attempts counts analysis runs; retries increment it without a new charge
	Attempts int

	// SessionID is the web session or "cli" / "mcp" that made the capture
	SessionID string

	// CreatedAt is the Unix timestamp of the charge
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last status change
	UpdatedAt int64

	// FinishedAt is the Unix timestamp of the last resolution (nullable)
	FinishedAt *int64

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64
}
