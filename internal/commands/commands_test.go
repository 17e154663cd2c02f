package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
)

const statement = `Date,Description,Amount
2024-01-15,STARBUCKS #1234,-4.50
2024-01-16,WHOLE FOODS 00012345,-125.30
2024-01-16,WHOLE FOODS 00012345,-125.30
2024-01-17,Lunch,abc
`

// run executes the root command from an empty directory so no .env is picked up.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func writeStatement(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPresetsCommand(t *testing.T) {
	out, err := run(t, "presets")
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	for _, name := range sniffer.PresetNames() {
		assert.Contains(t, out, name)
	}
}

func TestDetectCommand(t *testing.T) {
	path := writeStatement(t, "statement.csv", statement)

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "detect", path)
		require.NoError(t, err)
		assert.Contains(t, out, "fingerprint")
		assert.Regexp(t, `description\s+Description`, out)
		assert.Contains(t, out, "STARBUCKS #1234")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "detect", "--json", path)
		require.NoError(t, err)

		var result struct {
			Format    string `json:"format"`
			Detection struct {
				Fingerprint string `json:"fingerprint"`
				Mapping     struct {
					DateColumn string `json:"date_column"`
				} `json:"mapping"`
			} `json:"detection"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "csv", result.Format)
		assert.Equal(t, "Date", result.Detection.Mapping.DateColumn)
		assert.NotEmpty(t, result.Detection.Fingerprint)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "detect", filepath.Join(t.TempDir(), "nope.csv"))
		assert.ErrorContains(t, err, "reading")
	})

	t.Run("undetectable", func(t *testing.T) {
		_, err := run(t, "detect", writeStatement(t, "notes.txt", "hello\nworld\n"))
		assert.Error(t, err)
	})
}

func TestPreviewCommand(t *testing.T) {
	path := writeStatement(t, "statement.csv", statement)

	t.Run("flags duplicates and errors", func(t *testing.T) {
		report := filepath.Join(t.TempDir(), "errors.csv")

		out, err := run(t, "preview", "--errors", report, path)
		require.NoError(t, err)

		assert.Contains(t, out, "Starbucks")
		assert.Contains(t, out, "duplicate (file)")
		assert.Contains(t, out, "2 new, 1 duplicates, 1 errors, 0 skipped")

		data, err := os.ReadFile(report)
		require.NoError(t, err)
		assert.Contains(t, string(data), "row,column,message,raw")
		assert.Contains(t, string(data), "invalid amount")
	})

	t.Run("silent drops failed rows", func(t *testing.T) {
		out, err := run(t, "preview", "--silent", path)
		require.NoError(t, err)
		assert.Contains(t, out, "2 new, 1 duplicates, 0 errors, 0 skipped")
	})

	t.Run("explicit mapping", func(t *testing.T) {
		odd := writeStatement(t, "odd.csv", "When,What,HowMuch\n2024-01-15,Coffee,-4.50\n")
		mapping := writeStatement(t, "mapping.json", `{
			"date_column": "When",
			"description_column": "What",
			"amount_column": "HowMuch",
			"date_format": "2006-01-02",
			"delimiter": 44,
			"has_header": true
		}`)

		out, err := run(t, "preview", "--mapping", mapping, "--currency", "USD", odd)
		require.NoError(t, err)
		assert.Contains(t, out, "Coffee")
		assert.Contains(t, out, "1 new, 0 duplicates")
	})

	t.Run("unknown preset", func(t *testing.T) {
		_, err := run(t, "preview", "--preset", "no-such-bank", path)
		assert.ErrorContains(t, err, "preset")
	})

	t.Run("bad account", func(t *testing.T) {
		_, err := run(t, "preview", "--account", "not-a-uuid", path)
		assert.ErrorContains(t, err, "invalid --account")
	})
}

func TestImportCommand_RequiresAccount(t *testing.T) {
	path := writeStatement(t, "statement.csv", statement)

	_, err := run(t, "import", path)
	assert.ErrorIs(t, err, errAccountRequired)

	_, err = run(t, "import", "--account", "nope", path)
	assert.ErrorContains(t, err, "invalid --account")
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		flag, path string
		want       string
		wantErr    bool
	}{
		{"", "a.csv", "csv", false},
		{"", "a.XLSX", "xlsx", false},
		{"", "a.dat", "", false},
		{"excel", "a.csv", "xlsx", false},
		{"pdf", "a.csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.flag+"/"+tt.path, func(t *testing.T) {
			got, err := resolveFormat(tt.flag, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
