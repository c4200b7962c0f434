package httpproto_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/666WXY666/WebServer/internal/httpproto"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestResponseBuildServesExistingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html>hi</html>")

	var r httpproto.Response
	if err := r.Build(dir, "/index.html", 200, false); err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer r.Close()

	if r.Code != 200 {
		t.Fatalf("expected 200, got %d", r.Code)
	}
	if !strings.Contains(string(r.Header), "Content-Type: text/html") {
		t.Fatalf("expected text/html content type, got header %q", r.Header)
	}
	if !strings.Contains(string(r.Header), "Content-Length: 15") {
		t.Fatalf("expected content length 15, got header %q", r.Header)
	}
	if string(r.Body()) != "<html>hi</html>" {
		t.Fatalf("expected mapped body to match file contents, got %q", r.Body())
	}
}

func TestResponseBuildRewritesMissingFileTo404(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "404.html", "not found")

	var r httpproto.Response
	if err := r.Build(dir, "/missing.html", 200, false); err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer r.Close()

	if r.Code != 404 {
		t.Fatalf("expected 404, got %d", r.Code)
	}
	if r.Path != "/404.html" {
		t.Fatalf("expected remap to /404.html, got %q", r.Path)
	}
}

func TestResponseBuildKeepAliveHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "welcome.html", "hi")

	var r httpproto.Response
	if err := r.Build(dir, "/welcome.html", 200, true); err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer r.Close()

	h := string(r.Header)
	if !strings.Contains(h, "Connection: keep-alive\r\n") {
		t.Fatalf("expected keep-alive header, got %q", h)
	}
	if !strings.Contains(h, "keep-alive: max=6, timeout=120\r\n") {
		t.Fatalf("expected keep-alive parameters, got %q", h)
	}
}

func TestResponseBuildDirectoryIs403(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, dir, "403.html", "forbidden")

	var r httpproto.Response
	if err := r.Build(dir, "/sub", 200, false); err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer r.Close()

	if r.Code != 403 {
		t.Fatalf("expected 403, got %d", r.Code)
	}
}

func TestErrorContentRendersInlineBody(t *testing.T) {
	body := httpproto.ErrorContent(400, "bad syntax")
	if !strings.Contains(string(body), "400") || !strings.Contains(string(body), "bad syntax") {
		t.Fatalf("expected inline body to mention code and message, got %q", body)
	}
}
