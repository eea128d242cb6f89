package filestore

import "testing"

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("invoice data"))
	b := ContentHash([]byte("invoice data"))
	c := ContentHash([]byte("other data"))

	if a != b {
		t.Error("hash not deterministic")
	}
	if a == c {
		t.Error("different content produced same hash")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://my-bucket/uploads/file.xlsx", "my-bucket", "uploads/file.xlsx", false},
		{"gs://my-bucket/", "", "", true},
		{"gs://my-bucket", "", "", true},
		{"https://example.com/file", "", "", true},
	}
	for _, tt := range tests {
		bucket, object, err := parseURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseURI(%q): expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseURI(%q): %v", tt.uri, err)
			continue
		}
		if bucket != tt.bucket || object != tt.object {
			t.Errorf("parseURI(%q) = %q, %q", tt.uri, bucket, object)
		}
	}
}
