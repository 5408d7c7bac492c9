package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDotEnv(t *testing.T) {
	input := `
# workspace secrets
BASE_URL=https://localhost:8443
export API_USER = admin
API_PASSWORD="p@ss \"word\"\n"
RAW='no $expansion \n here' # literal
DSN=postgres://u:p@db/app?ssl=true
NOTE=keep#hash # drop this
EMPTY=
tls.alias=client
`
	vars, err := ParseDotEnv(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"BASE_URL":     "https://localhost:8443",
		"API_USER":     "admin",
		"API_PASSWORD": "p@ss \"word\"\n",
		"RAW":          `no $expansion \n here`,
		"DSN":          "postgres://u:p@db/app?ssl=true",
		"NOTE":         "keep#hash",
		"EMPTY":        "",
		"tls.alias":    "client",
	}, vars)
}

func TestParseDotEnv_LaterAssignmentWins(t *testing.T) {
	vars, err := ParseDotEnv(strings.NewReader("A=1\nA=2"))
	require.NoError(t, err)
	assert.Equal(t, "2", vars["A"])
}

func TestParseDotEnv_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  string
	}{
		{"missing equals", "A=1\nJUSTAWORD", "line 2"},
		{"bad name", "1ABC=x", "line 1"},
		{"space in name", "MY VAR=x", "line 1"},
		{"unterminated double", `A="open`, "line 1"},
		{"unterminated single", "\n\nA='open", "line 3"},
		{"junk after quote", `A="x" y`, "line 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDotEnv(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSyntax)
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestLoadDotEnv_NamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OK=1\nbroken"), 0644))

	_, err := LoadDotEnv(path)
	assert.ErrorIs(t, err, ErrSyntax)
	assert.Contains(t, err.Error(), path)

	_, err = LoadDotEnv(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("A=1\nB=2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("B=3"), 0644))

	vars, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "3"}, vars)

	vars, err = LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, vars)
}
