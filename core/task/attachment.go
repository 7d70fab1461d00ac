package task

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	extCategories = map[string]Category{
		"png":  CategoryImage,
		"jpg":  CategoryImage,
		"jpeg": CategoryImage,
		"gif":  CategoryImage,
		"doc":  CategoryDocument,
		"docx": CategoryDocument,
		"pdf":  CategoryDocument,
		"txt":  CategoryDocument,
	}

	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// FileStore persists attachment contents under a name and gives them back by reference.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader, contentType string) (ref string, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// SanitizeFilename strips any directory from name and replaces unsafe characters with underscores.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "file"
	}
	return name
}

// Extension returns the lowercased extension of name, without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// CategoryOf returns the category of a file extension; ok is false for unknown extensions.
func CategoryOf(ext string) (c Category, ok bool) {
	c, ok = extCategories[strings.ToLower(ext)]
	if !ok {
		return CategoryOther, false
	}
	return c, true
}

// StoredName returns the collision resistant name an attachment is stored under:
// <actor>_<task|free>_<unix timestamp>_<8 random hex chars>.<ext>
func StoredName(actorID int, classroomTaskID *int, ext string, now time.Time) string {
	taskPart := "free"
	if classroomTaskID != nil {
		taskPart = strconv.Itoa(*classroomTaskID)
	}
	name := fmt.Sprintf("%d_%s_%d_%s", actorID, taskPart, now.Unix(), strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	if ext != "" {
		name += "." + ext
	}
	return name
}
