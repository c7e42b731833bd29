package record

// Summary is an analysis without its report text, for history listings.
type Summary struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	DisplayName  string  `json:"display_name"`
	MediaType    string  `json:"media_type"`
	ContentBytes int64   `json:"content_bytes"`
	Status       string  `json:"status"`
	Excerpt      string  `json:"excerpt,omitempty"`
	ReportChars  int     `json:"report_chars"`
	ErrorCode    *string `json:"error_code,omitempty"`
	Attempts     int     `json:"attempts"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
	FinishedAt   *int64  `json:"finished_at,omitempty"`
}

// excerptChars is the length of the report preview in listings.
const excerptChars = 96

// ToSummary strips the report text, keeping a short excerpt.
func (a *Analysis) ToSummary() Summary {
	return Summary{
		ID:           a.ID,
		Kind:         a.Kind,
		DisplayName:  a.DisplayName,
		MediaType:    a.MediaType,
		ContentBytes: a.ContentBytes,
		Status:       a.Status,
		Excerpt:      Excerpt(a.ReportText, excerptChars),
		ReportChars:  a.ReportChars,
		ErrorCode:    a.ErrorCode,
		Attempts:     a.Attempts,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		FinishedAt:   a.FinishedAt,
	}
}
