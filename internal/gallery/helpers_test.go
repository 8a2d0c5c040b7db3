package gallery

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// writeImage writes a small solid PNG whose color is derived from seed.
func writeImage(t *testing.T, path string, seed int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	c := color.RGBA{R: uint8(seed * 37), G: uint8(seed * 91), B: uint8(seed * 13), A: 255}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// makeTree creates root/<label>/<file> for every entry in files.
func makeTree(t *testing.T, files map[string][]string) string {
	t.Helper()
	root := t.TempDir()
	seed := 1
	for label, names := range files {
		for _, name := range names {
			writeImage(t, filepath.Join(root, label, name), seed)
			seed++
		}
	}
	return root
}
