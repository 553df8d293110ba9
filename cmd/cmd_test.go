package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8080", wantErr: false},
		{name: "localhost", addr: "localhost:9090", wantErr: false},
		{name: "ipv4", addr: "127.0.0.1:8080", wantErr: false},
		{name: "ipv6", addr: "[::1]:8080", wantErr: false},
		{name: "auto-assign port", addr: ":0", wantErr: false},
		{name: "missing port", addr: "localhost", wantErr: true},
		{name: "empty port", addr: "localhost:", wantErr: true},
		{name: "non-numeric port", addr: ":http", wantErr: true},
		{name: "port out of range", addr: ":70000", wantErr: true},
		{name: "host with whitespace", addr: "bad host:8080", wantErr: true},
		{name: "empty", addr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParseInclude(t *testing.T) {
	tests := []struct {
		name    string
		blocks  []string
		wantErr bool
		check   func(t *testing.T, in includeResult)
	}{
		{
			name:   "empty",
			blocks: nil,
			check: func(t *testing.T, in includeResult) {
				if in.any {
					t.Error("expected no blocks enabled")
				}
			},
		},
		{
			name:   "all blocks",
			blocks: []string{"context", "connections", "evolution", "predictions", "alignment"},
			check: func(t *testing.T, in includeResult) {
				if !in.livingContext || !in.connections || !in.evolution || !in.predictions || !in.alignment {
					t.Error("expected every block enabled")
				}
			},
		},
		{
			name:   "whitespace tolerated",
			blocks: []string{" context ", "alignment"},
			check: func(t *testing.T, in includeResult) {
				if !in.livingContext || !in.alignment {
					t.Error("expected trimmed blocks enabled")
				}
				if in.connections || in.evolution || in.predictions {
					t.Error("unexpected block enabled")
				}
			},
		},
		{name: "unknown block", blocks: []string{"metrics"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := parseInclude(tt.blocks)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseInclude(%v) error = %v, wantErr %v", tt.blocks, err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, includeResult{
					livingContext: in.LivingContext,
					connections:   in.Connections,
					evolution:     in.Evolution,
					predictions:   in.Predictions,
					alignment:     in.Alignment,
					any:           in.Any(),
				})
			}
		})
	}
}

// includeResult flattens query.Include so table checks stay readable.
type includeResult struct {
	livingContext bool
	connections   bool
	evolution     bool
	predictions   bool
	alignment     bool
	any           bool
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "a.md"):      "doc a",
		filepath.Join(dir, "notes.txt"): "not markdown",
		filepath.Join(sub, "b.md"):      "doc b",
	}
	for path, body := range files {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("directory walk picks up markdown only", func(t *testing.T) {
		paths, err := collectFiles([]string{dir})
		if err != nil {
			t.Fatalf("collectFiles: %v", err)
		}
		if len(paths) != 2 {
			t.Fatalf("expected 2 markdown files, got %d: %v", len(paths), paths)
		}
	})

	t.Run("explicit file kept regardless of extension", func(t *testing.T) {
		paths, err := collectFiles([]string{filepath.Join(dir, "notes.txt")})
		if err != nil {
			t.Fatalf("collectFiles: %v", err)
		}
		if len(paths) != 1 {
			t.Fatalf("expected 1 file, got %d", len(paths))
		}
	})

	t.Run("missing path errors", func(t *testing.T) {
		if _, err := collectFiles([]string{filepath.Join(dir, "missing.md")}); err == nil {
			t.Error("expected error for missing path")
		}
	})
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "AIzaSyAbCdEfGh1234567890", want: "AIza...7890"},
		{key: "12345678", want: "1234...5678"},
		{key: "short", want: "****"},
		{key: "", want: "****"},
	}

	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
