package service

import "testing"

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		customID string
		prefix   string
		want     string
		wantErr  bool
	}{
		{"cv-parse-abc", cvParsePrefix, "abc", false},
		{"cv-abc", cvEmbedPrefix, "abc", false},
		{"job-abc", jobEmbedPrefix, "abc", false},
		{"job-", jobEmbedPrefix, "", true},
		{"cv-abc", jobEmbedPrefix, "", true},
		{"", cvEmbedPrefix, "", true},
	}
	for _, tt := range tests {
		got, err := parseCustomID(tt.customID, tt.prefix)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCustomID(%q, %q) error = %v, wantErr %v", tt.customID, tt.prefix, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCustomID(%q, %q) = %q, want %q", tt.customID, tt.prefix, got, tt.want)
		}
	}
}

func TestParsePredictionCustomID(t *testing.T) {
	tests := []struct {
		customID string
		want     string
		wantErr  bool
	}{
		{"pred-p1-job-j1", "p1", false},
		{"pred-550e8400-e29b-41d4-a716-446655440000-job-abc", "550e8400-e29b-41d4-a716-446655440000", false},
		{"pred--job-j1", "", true},
		{"pred-p1", "", true},
		{"cv-p1", "", true},
	}
	for _, tt := range tests {
		got, err := parsePredictionCustomID(tt.customID)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePredictionCustomID(%q) error = %v, wantErr %v", tt.customID, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePredictionCustomID(%q) = %q, want %q", tt.customID, got, tt.want)
		}
	}
}
