// Package feedback persists user-submitted correction images and keeps a
// log of which label each image was filed under.
package feedback

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Backend kinds.
const (
	KindLocal       = "local"
	KindObjectStore = "objectstore"
)

// Backend stores feedback images. Save returns a path that Delete accepts.
type Backend interface {
	Save(ctx context.Context, data []byte, filename string) (string, error)
	Delete(ctx context.Context, path string) error
	Kind() string
}

// objectName returns "YYYY-MM-DD/<uuid><ext>" for an upload named filename.
// The extension is lowercased; an upload without one is stored as .jpg.
func objectName(now time.Time, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s/%s%s", now.Format("2006-01-02"), uuid.NewString(), ext)
}
