package classpath

import (
	"os"
	"path/filepath"
	"testing"
)

// runGuest is a guest exporting memory and an empty run().
var runGuest = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type () -> ()
	0x03, 0x02, 0x01, 0x00, // one function of type 0
	0x05, 0x03, 0x01, 0x00, 0x01, // one page of memory
	0x07, 0x10, 0x02, // exports
	0x03, 'r', 'u', 'n', 0x00, 0x00,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b, // body: end
}

const gaugeManifest = `name: gauges
version: 1.0.0
description: demo gauges
classes:
  - name: demo/Gauge
    fields:
      - name: level
        descriptor: D
    methods:
      - name: <init>
        descriptor: (D)V
        impl: init:level
      - name: level
        descriptor: ()D
        impl: getter:level
`

// writeBundle creates dir/name with the given manifest and extra files.
func writeBundle(t *testing.T, dir, name, manifest string, files map[string][]byte) string {
	t.Helper()
	bundleDir := filepath.Join(dir, name)
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	for file, data := range files {
		if err := os.WriteFile(filepath.Join(bundleDir, file), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return bundleDir
}
