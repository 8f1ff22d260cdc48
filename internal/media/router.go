package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mariovalmir/chatwoot/internal/models"
)

// Router describes how a message type is stored as an attachment
type Router interface {
	// FileType returns the attachment file type for a message type
	FileType(t models.ContentType) string
	// ContentType returns mime, or the default mime for t when mime is blank
	ContentType(t models.ContentType, mime string) string
	// Extension returns the file extension, with dot, for t
	Extension(t models.ContentType, mime, fileName string) string
	// FileName returns name when it has an extension, else a generated name
	FileName(t models.ContentType, name, mime, messageID string) string
}

type router struct {
	now func() time.Time
}

// NewRouter creates a new Router instance
func NewRouter() Router {
	return &router{now: time.Now}
}

func (r *router) FileType(t models.ContentType) string {
	switch t {
	case models.ContentImage, models.ContentSticker:
		return models.FileTypeImage
	case models.ContentVideo:
		return models.FileTypeVideo
	case models.ContentAudio:
		return models.FileTypeAudio
	case models.ContentLocation:
		return models.FileTypeLocation
	case models.ContentContacts:
		return models.FileTypeContact
	default:
		return models.FileTypeFile
	}
}

var defaultMimes = map[models.ContentType]string{
	models.ContentImage:   "image/jpeg",
	models.ContentVideo:   "video/mp4",
	models.ContentAudio:   "audio/mpeg",
	models.ContentFile:    "application/octet-stream",
	models.ContentSticker: "image/webp",
}

func (r *router) ContentType(t models.ContentType, mime string) string {
	if mime = strings.TrimSpace(mime); mime != "" {
		return mime
	}
	if m, ok := defaultMimes[t]; ok {
		return m
	}
	return "application/octet-stream"
}

type extRule struct {
	match string
	ext   string
}

// First matching substring of the mime wins.
var extRules = map[models.ContentType][]extRule{
	models.ContentImage: {{"jpeg", ".jpg"}, {"png", ".png"}, {"gif", ".gif"}, {"webp", ".webp"}},
	models.ContentVideo: {{"mp4", ".mp4"}, {"webm", ".webm"}, {"avi", ".avi"}},
	models.ContentAudio: {{"mp3", ".mp3"}, {"wav", ".wav"}, {"ogg", ".ogg"}, {"aac", ".aac"}, {"opus", ".opus"}},
	models.ContentFile:  {{"pdf", ".pdf"}, {"doc", ".doc"}, {"zip", ".zip"}},
}

var defaultExts = map[models.ContentType]string{
	models.ContentImage:   ".jpg",
	models.ContentVideo:   ".mp4",
	models.ContentAudio:   ".mp3",
	models.ContentFile:    ".bin",
	models.ContentSticker: ".webp",
}

func (r *router) Extension(t models.ContentType, mime, fileName string) string {
	if t == models.ContentFile {
		if ext := filepath.Ext(fileName); ext != "" {
			return ext
		}
	}
	if t == models.ContentSticker {
		return ".webp"
	}
	for _, rule := range extRules[t] {
		if strings.Contains(mime, rule.match) {
			return rule.ext
		}
	}
	if ext, ok := defaultExts[t]; ok {
		return ext
	}
	return ".bin"
}

func (r *router) FileName(t models.ContentType, name, mime, messageID string) string {
	name = strings.TrimSpace(name)
	if name != "" && filepath.Ext(name) != "" {
		return name
	}
	if name == "" {
		name = fmt.Sprintf("%s_%s_%s", t, messageID, r.now().Format("20060102"))
	}
	return name + r.Extension(t, mime, "")
}
