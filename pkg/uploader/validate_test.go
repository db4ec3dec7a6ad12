package uploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestValidationRules_Validate(t *testing.T) {
	png := NewBytesSource("pic.png", pngHeader, modTime)
	text := NewBytesSource("notes.txt", []byte("plain text"), modTime)

	tests := []struct {
		name    string
		rules   ValidationRules
		files   []Source
		wantMsg string
	}{
		{name: "no rules", files: []Source{png, text}},
		{name: "wildcard type", rules: ValidationRules{AcceptedTypes: "image/*"}, files: []Source{png}},
		{name: "exact type", rules: ValidationRules{AcceptedTypes: "text/plain, image/png"}, files: []Source{png, text}},
		{name: "extension", rules: ValidationRules{AcceptedTypes: ".TXT"}, files: []Source{text}},
		{name: "rejected type", rules: ValidationRules{AcceptedTypes: "image/*"}, files: []Source{png, text},
			wantMsg: "File type not accepted. Accepted types: image/*"},
		{name: "too many files", rules: ValidationRules{MaxFiles: 1}, files: []Source{png, text},
			wantMsg: "You can only upload up to 1 files"},
		{name: "total size", rules: ValidationRules{MaxTotalSize: 20}, files: []Source{png, text},
			wantMsg: "Total file size exceeds 20B"},
		{name: "empty selection", wantMsg: "No files selected"},
		{name: "hidden file", files: []Source{NewBytesSource(".env", []byte("x"), modTime)},
			wantMsg: `File name ".env" is not allowed`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Validate(tt.files)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantMsg, validationErr.Message)
		})
	}
}
