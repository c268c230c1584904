package shell_test

import (
	"slices"
	"testing"

	"markerflow/internal/shell"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"'already'", "'already'"},
		{`"double"`, `"double"`},
		{"", "''"},
		{"'", `''\'''`},
	}
	for _, tt := range tests {
		if got := shell.Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCommandLine(t *testing.T) {
	cmd := shell.Command{
		Executable: "/opt/tools/notion upload",
		Options: []shell.Option{
			shell.Value("workspace-name", "Edit Bay"),
			shell.Secret("token", "secret_abc"),
			shell.Values("rename-key-column", "Marker ID", "Key"),
			shell.Flag("-q"),
			shell.Raw("2>&1"),
			shell.Path("/Volumes/Media/Project's Export/markers.json"),
		},
	}

	want := `'/opt/tools/notion upload' --workspace-name 'Edit Bay' --token 'secret_abc' --rename-key-column 'Marker ID' 'Key' -q 2>&1 '/Volumes/Media/Project'\''s Export/markers.json'`
	if got := cmd.Line(); got != want {
		t.Fatalf("Line() =\n%s\nwant\n%s", got, want)
	}

	redacted := cmd.Redacted()
	if redacted == cmd.Line() {
		t.Fatal("expected redacted line to differ")
	}
	if want := `--token '***'`; !contains(redacted, want) {
		t.Fatalf("expected %q in %q", want, redacted)
	}

	wantArgs := []string{
		"--workspace-name", "Edit Bay",
		"--token", "secret_abc",
		"--rename-key-column", "Marker ID", "Key",
		"-q",
		"2>&1",
		"/Volumes/Media/Project's Export/markers.json",
	}
	if got := cmd.Args(); !slices.Equal(got, wantArgs) {
		t.Fatalf("Args() = %q, want %q", got, wantArgs)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
