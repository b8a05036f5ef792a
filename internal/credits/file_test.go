package credits

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFile(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantCaps bool
		want     int
		wantErr  string
	}{
		{
			name: "yaml document",
			data: `
capabilities:
  with_names: true
  with_arrear_flag: true
credits:
  - subject_code: CS101
    credit_value: 4
    subject_name: Data Structures
    faculty_name: Dr. Rao
    is_current_semester: true
  - {subject_code: MA201, credit_value: 3, subject_name: Calculus, faculty_name: Dr. Iyer}
`,
			wantCaps: true,
			want:     2,
		},
		{
			name: "bare yaml list",
			data: "- {subject_code: CS101, credit_value: 4}\n- {subject_code: CS102, credit_value: 3}\n",
			want: 2,
		},
		{
			name: "json list",
			data: `[{"subject_code": "CS101", "credit_value": 4}]`,
			want: 1,
		},
		{
			name: "json document",
			data: `{"capabilities": {"with_names": true, "with_arrear_flag": true}, "credits": [{"subject_code": "CS101", "credit_value": 4.5}]}`,
			wantCaps: true,
			want:     1,
		},
		{
			name:    "scalar",
			data:    "just text",
			wantErr: "neither a credit document nor a list",
		},
		{
			name:    "document without entries",
			data:    "capabilities:\n  with_names: true\ncredits: []\n",
			wantErr: "no credit entries",
		},
		{
			name:    "empty list",
			data:    "[]",
			wantErr: "no credit entries",
		},
		{
			name:    "empty file",
			data:    "",
			wantErr: "no credit entries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFile([]byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, f.Credits, tt.want)
			assert.Equal(t, tt.wantCaps, f.Capabilities.WithArrearFlag)
			assert.Equal(t, "CS101", f.Credits[0].SubjectCode)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- {subject_code: CS101, credit_value: 4}\n"), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4.0, f.Credits[0].CreditValue)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read credit file")
}
