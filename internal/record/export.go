package record

// ExportRecord is one line of a JSONL history export.
// The first line of a file is a header with AtlasExport set.
type ExportRecord struct {
	// Header detection field - true only for header line
	AtlasExport bool `json:"_atlas_export,omitempty"`

	// Header fields (only present in header line)
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	// Analysis fields
	ID           string  `json:"id,omitempty"`
	Kind         string  `json:"kind,omitempty"`
	DisplayName  string  `json:"display_name,omitempty"`
	MediaType    string  `json:"media_type,omitempty"`
	ContentBytes int64   `json:"content_bytes,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	Status       string  `json:"status,omitempty"`
	ReportText   string  `json:"report_text,omitempty"`
	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	Attempts     int     `json:"attempts,omitempty"`
	CreatedAt    int64   `json:"created_at,omitempty"`
	UpdatedAt    int64   `json:"updated_at,omitempty"`
	FinishedAt   *int64  `json:"finished_at,omitempty"`
}

// ToExportRecord converts an analysis for export. The cached content path
// and session are local details and are not exported.
func (a *Analysis) ToExportRecord() *ExportRecord {
	return &ExportRecord{
		ID:           a.ID,
		Kind:         a.Kind,
		DisplayName:  a.DisplayName,
		MediaType:    a.MediaType,
		ContentBytes: a.ContentBytes,
		Width:        a.Width,
		Height:       a.Height,
		Status:       a.Status,
		ReportText:   a.ReportText,
		ErrorCode:    a.ErrorCode,
		ErrorMessage: a.ErrorMessage,
		Attempts:     a.Attempts,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		FinishedAt:   a.FinishedAt,
	}
}
