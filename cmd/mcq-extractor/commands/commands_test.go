package commands

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc123")
	t.Cleanup(func() { SetVersion("dev", "none") })

	out, err := execute(t, "version", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "mcq-extractor version 1.2.3")
	assert.Contains(t, out, "commit abc123")
}

func TestExtractCommand_RequiresFile(t *testing.T) {
	_, err := execute(t, "extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestServeCommand_RejectsArgs(t *testing.T) {
	_, err := execute(t, "serve", "extra")
	require.Error(t, err)
}

func TestExtractCommand_MissingFile(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")
	t.Chdir(t.TempDir())

	_, err := execute(t, "extract", filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
}

func TestDefaultOutputPath(t *testing.T) {
	tests := []struct {
		input string
		ext   string
		want  string
	}{
		{"exam.pdf", ".xlsx", "exam-mcqs.xlsx"},
		{filepath.Join("dir", "final exam.docx"), ".xlsx", filepath.Join("dir", "final exam-mcqs.xlsx")},
		{filepath.Join("a", "b", "quiz"), ".txt", filepath.Join("a", "b", "quiz-mcqs.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultOutputPath(tt.input, tt.ext))
		})
	}
}
