package record

import (
	"strings"
	"testing"
)

const sampleReport = `Based on the image provided, this appears to be a calculus problem.

**Solution:**
To solve d/dx(x^2 + 3x), we apply the power rule.

**Final Answer:**
2x + 3

## Explanation
The power rule states that d/dx(x^n) = nx^(n-1).`

func TestParseSections(t *testing.T) {
	sections := ParseSections(sampleReport)
	if len(sections) != 4 {
		t.Fatalf("len(sections) = %d, want 4: %+v", len(sections), sections)
	}

	if sections[0].Title != "" || !strings.HasPrefix(sections[0].Body, "Based on the image") {
		t.Errorf("lead section = %+v", sections[0])
	}

	wantTitles := []string{"Solution", "Final Answer", "Explanation"}
	for i, want := range wantTitles {
		if got := sections[i+1].Title; got != want {
			t.Errorf("sections[%d].Title = %q, want %q", i+1, got, want)
		}
	}
	if sections[2].Body != "2x + 3" {
		t.Errorf("Final Answer body = %q, want %q", sections[2].Body, "2x + 3")
	}
}

func TestParseSections_NoHeadings(t *testing.T) {
	sections := ParseSections("  just text\n")
	if len(sections) != 1 || sections[0].Body != "just text" || sections[0].Title != "" {
		t.Errorf("ParseSections() = %+v", sections)
	}
	if ParseSections("   ") != nil {
		t.Error("ParseSections(blank) should be nil")
	}
}

func TestParseSections_InlineBoldIsNotHeading(t *testing.T) {
	sections := ParseSections("The **answer** is 4.")
	if len(sections) != 1 {
		t.Fatalf("len(sections) = %d, want 1", len(sections))
	}
}

func TestFindSection(t *testing.T) {
	sections := ParseSections(sampleReport)

	s := FindSection(sections, "final answer")
	if s == nil || s.Body != "2x + 3" {
		t.Fatalf("FindSection(final answer) = %+v", s)
	}
	if FindSection(sections, "Summary") != nil {
		t.Error("FindSection(Summary) should be nil")
	}

	titles := SectionTitles(sections)
	if strings.Join(titles, ",") != "Solution,Final Answer,Explanation" {
		t.Errorf("SectionTitles() = %v", titles)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"notes.pdf", "notes.pdf"},
		{"  lecture   4.pdf ", "lecture 4.pdf"},
		{"/tmp/uploads/scan.png", "scan.png"},
		{`C:\Users\me\hw.pdf`, "hw.pdf"},
		{"", ""},
		{".", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("é", 300)
	if got := CountChars(NormalizeName(long)); got != maxNameChars {
		t.Errorf("long name chars = %d, want %d", got, maxNameChars)
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("**Solution:**\nUse the  power rule.", 0); got != "Solution: Use the power rule." {
		t.Errorf("Excerpt() = %q", got)
	}

	got := Excerpt("abcdefghij", 5)
	if got != "abcd…" {
		t.Errorf("Excerpt(truncated) = %q, want %q", got, "abcd…")
	}
	if CountChars(got) != 5 {
		t.Errorf("excerpt length = %d, want 5", CountChars(got))
	}
}

func TestToSummaryAndExport(t *testing.T) {
	code := "ANALYSIS_FAILED"
	a := &Analysis{
		ID:          "01ABC",
		Kind:        "document",
		DisplayName: "notes.pdf",
		ContentPath: "/cache/01ABC.pdf",
		Status:      "failed",
		ReportText:  "",
		ErrorCode:   &code,
		Attempts:    2,
		SessionID:   "cli",
		CreatedAt:   100,
		UpdatedAt:   200,
	}

	s := a.ToSummary()
	if s.ID != a.ID || s.Status != "failed" || s.Attempts != 2 || s.Excerpt != "" {
		t.Errorf("ToSummary() = %+v", s)
	}
	if s.ErrorCode == nil || *s.ErrorCode != code {
		t.Errorf("summary error code = %v", s.ErrorCode)
	}

	r := a.ToExportRecord()
	if r.AtlasExport {
		t.Error("record line must not be a header")
	}
	if r.ID != a.ID || r.DisplayName != "notes.pdf" || r.CreatedAt != 100 {
		t.Errorf("ToExportRecord() = %+v", r)
	}
}
