// Package upload — загрузка снимков страниц в хранилище; возвращает публичный URL.
package upload

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"doc-scanner/api/internal/util"
)

// Uploader кладёт изображение и возвращает его http(s) адрес.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// ObjectName — уникальное имя объекта: scans/2006/01/02/<uuid><ext>.
func ObjectName(now time.Time, name, mime string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = util.ImageExt(mime)
	}
	return path.Join("scans", now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}
