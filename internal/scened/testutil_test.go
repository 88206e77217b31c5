package scened

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testMaterialID = "6f1c3f0e-0000-4000-8000-0000000000a2"
	testObjectID   = "6f1c3f0e-0000-4000-8000-0000000000a3"
)

const testSceneYAML = `
layers:
  - id: 6f1c3f0e-0000-4000-8000-0000000000a1
    name: Default
materials:
  - id: 6f1c3f0e-0000-4000-8000-0000000000a2
    name: Painted Red
    diffuse: {r: 255, g: 0, b: 0, a: 255}
    ior: 1.5
objects:
  - id: 6f1c3f0e-0000-4000-8000-0000000000a3
    kind: mesh
    attributes:
      name: Panel
      layer: 6f1c3f0e-0000-4000-8000-0000000000a1
      material: 6f1c3f0e-0000-4000-8000-0000000000a2
      material_source: object
    mesh:
      - vertices: [{x: 0, y: 0, z: 0}, {x: 1, y: 0, z: 0}, {x: 0, y: 1, z: 0}]
        indices: [0, 1, 2]
settings:
  sun:
    enabled: true
    altitude: 45
`

func writeScene(t *testing.T, dir string, yaml string) string {
	t.Helper()
	path := filepath.Join(dir, "scene.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write scene: %v", err)
	}
	return path
}

func recolor(yaml string) string {
	return strings.Replace(yaml, "{r: 255, g: 0, b: 0, a: 255}", "{r: 0, g: 0, b: 255, a: 255}", 1)
}

func startServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	if opts.Listen == "" {
		opts.Listen = "127.0.0.1:0"
	}
	s := NewServer(opts)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()
	addr := waitAddr(t, s, time.Second)
	t.Cleanup(func() {
		_ = s.Close()
		select {
		case <-errCh:
		case <-time.After(time.Second):
			t.Error("server did not stop within 1s after Close")
		}
	})
	return s, addr
}

func waitAddr(t *testing.T, s *Server, timeout time.Duration) string {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != "" {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start listening in time")
	return ""
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}
