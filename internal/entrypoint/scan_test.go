package entrypoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestReadManifest_Formats(t *testing.T) {
	d := t.TempDir()
	writeFile(t, filepath.Join(d, "one.yaml"), "entryPoint: com.acme.ShopApplication\n")
	writeFile(t, filepath.Join(d, "many.json"), `{"entryPoints": ["a.A", "b.B"]}`)
	writeFile(t, filepath.Join(d, "META-INF", "MANIFEST.MF"),
		"Manifest-Version: 1.0\r\nMain-Class: org.example.Launcher\r\nStart-Class: com.acme.very.long.pack\r\n age.Shop\r\n")

	cs, err := ReadManifest(filepath.Join(d, "one.yaml"))
	if err != nil || strings.Join(ids(cs), ",") != "com.acme.ShopApplication" {
		t.Fatalf("yaml manifest: %v %v", ids(cs), err)
	}
	cs, err = ReadManifest(filepath.Join(d, "META-INF", "MANIFEST.MF"))
	if err != nil || strings.Join(ids(cs), ",") != "com.acme.very.long.package.Shop" {
		t.Fatalf("jar manifest: %v %v", ids(cs), err)
	}
	cs, err = ReadManifest(d)
	if err != nil {
		t.Fatalf("dir manifest: %v", err)
	}
	got := strings.Join(ids(cs), ",")
	want := "com.acme.very.long.package.Shop,a.A,b.B,com.acme.ShopApplication"
	if got != want {
		t.Fatalf("dir manifest ids\nwant: %s\n got: %s", want, got)
	}
	for _, c := range cs {
		if c.Source != SourceManifest || c.Origin == "" {
			t.Fatalf("unexpected candidate: %+v", c)
		}
	}
}

func TestReadManifest_DirectorySkipsDataFiles(t *testing.T) {
	d := t.TempDir()
	writeFile(t, filepath.Join(d, "META-INF", "MANIFEST.MF"), "Manifest-Version: 1.0\nMain-Class: com.acme.App\n")
	writeFile(t, filepath.Join(d, "locales.json"), `["en","fr"]`)
	writeFile(t, filepath.Join(d, "config", "broken.yaml"), "key: [unclosed\n")

	res, err := Resolve(context.Background(), Config{Manifest: d})
	if err != nil || res.State != StateResolved || res.Chosen.ID != "com.acme.App" {
		t.Fatalf("expected com.acme.App, got %+v %v", res, err)
	}

	if _, err := ReadManifest(filepath.Join(d, "locales.json")); err == nil {
		t.Fatalf("expected decode error for a manifest named directly")
	}
}

func TestReadManifest_MainClassFallback(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "MANIFEST.MF")
	writeFile(t, p, "Main-Class: com.acme.Main\n")
	cs, err := ReadManifest(p)
	if err != nil || len(cs) != 1 || cs[0].ID != "com.acme.Main" {
		t.Fatalf("unexpected: %+v %v", cs, err)
	}
}

func TestReadManifest_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "bad.yaml")
	writeFile(t, p, "entryPoints: [unterminated\n")
	if _, err := ReadManifest(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestScanConventions_DefaultPatterns(t *testing.T) {
	d := t.TempDir()
	writeFile(t, filepath.Join(d, "BOOT-INF", "classes", "com", "acme", "ShopApplication.class"), "")
	writeFile(t, filepath.Join(d, "BOOT-INF", "classes", "com", "acme", "Util.class"), "")
	writeFile(t, filepath.Join(d, "web", "server.js"), "")
	writeFile(t, filepath.Join(d, ".gitignore"), "web/\n")

	cs, err := ScanConventions(context.Background(), d, nil, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got := strings.Join(ids(cs), ","); got != "com.acme.ShopApplication" {
		t.Fatalf("unexpected ids: %s", got)
	}
	if cs[0].Source != SourceConvention {
		t.Fatalf("unexpected source: %s", cs[0].Source)
	}
}

func TestScanConventions_CustomPatterns(t *testing.T) {
	d := t.TempDir()
	writeFile(t, filepath.Join(d, "bin", "shop"), "")
	writeFile(t, filepath.Join(d, "bin", "tool"), "")
	cs, err := ScanConventions(context.Background(), d, []string{"shop"}, nil)
	if err != nil || strings.Join(ids(cs), ",") != "bin/shop" {
		t.Fatalf("unexpected: %v %v", ids(cs), err)
	}
}

func TestScanConventions_Rule(t *testing.T) {
	d := t.TempDir()
	writeFile(t, filepath.Join(d, "cmd", "shop", "main.go"), "")
	writeFile(t, filepath.Join(d, "README.md"), "")
	rule, err := CompileRule(`
function entrypoint(path)
  local name = string.match(path, "^cmd/([^/]+)/main%.go$")
  if name then return "/usr/local/bin/" .. name end
  return nil
end
`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cs, err := ScanConventions(context.Background(), d, nil, rule)
	if err != nil || strings.Join(ids(cs), ",") != "/usr/local/bin/shop" {
		t.Fatalf("unexpected: %v %v", ids(cs), err)
	}
}

func TestRule_SandboxAndTimeout(t *testing.T) {
	if _, err := CompileRule("function entrypoint(path"); err == nil {
		t.Fatalf("expected syntax error")
	}

	rule, err := CompileRule(`function entrypoint(path) return dofile("/etc/passwd") end`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := rule.Map(context.Background(), ".", []string{"x"}); err == nil {
		t.Fatalf("expected dofile to be unavailable")
	}

	rule, err = CompileRule(`function entrypoint(path) while true do end end`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rule.Timeout = 50 * time.Millisecond
	if _, err := rule.Map(context.Background(), ".", []string{"x"}); !errors.Is(err, ErrRuleTimeout) {
		t.Fatalf("expected ErrRuleTimeout, got %v", err)
	}

	rule, err = CompileRule(`function entrypoint(path) return 42 end`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := rule.Map(context.Background(), ".", []string{"x"}); err == nil {
		t.Fatalf("expected type error for numeric result")
	}
}

func TestResolve_EndToEnd(t *testing.T) {
	d := t.TempDir()
	mf := filepath.Join(d, "manifest.yaml")
	writeFile(t, mf, "entryPoints: [a.A, b.B]\n")

	res, err := Resolve(context.Background(), Config{Manifest: mf})
	var re *ResolutionError
	if !errors.As(err, &re) || res.State != StateAmbiguous {
		t.Fatalf("expected Ambiguous, got %+v %v", res, err)
	}

	res, err = Resolve(context.Background(), Config{Manifest: mf, Declared: "a.A"})
	if err != nil || res.Chosen.ID != "a.A" || res.Chosen.Source != SourceDeclared {
		t.Fatalf("expected declared a.A, got %+v %v", res, err)
	}

	empty := t.TempDir()
	res, err = Resolve(context.Background(), Config{Scan: empty})
	if !errors.As(err, &re) || res.State != StateNotFound || len(re.Candidates) != 0 {
		t.Fatalf("expected empty NotFound, got %+v %v", res, err)
	}

	if _, err := Resolve(context.Background(), Config{Prefer: "nope"}); err == nil {
		t.Fatalf("expected preference error")
	}
}
