package adapters

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
	"google.golang.org/genai"
)

// GenAIUploader uploads media through the Gemini Files API and waits until
// the service reports the file usable.
type GenAIUploader struct {
	client       *genai.Client
	logger       zerolog.Logger
	pollInterval time.Duration
}

func NewGenAIUploader(client *genai.Client, logger zerolog.Logger) *GenAIUploader {
	return &GenAIUploader{
		client:       client,
		logger:       logger.With().Str("component", "genai_uploader").Logger(),
		pollInterval: time.Second,
	}
}

// UploadFile uploads a local file. JPEG capture metadata is attached to the
// returned handle.
func (u *GenAIUploader) UploadFile(ctx context.Context, path string) (ports.MediaRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ports.MediaRef{}, fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := DetectMIME(path, data)

	ref, err := u.UploadBytes(ctx, filepath.Base(path), data, mimeType)
	if err != nil {
		return ports.MediaRef{}, err
	}
	ref.Details = DescribeImage(data)
	return ref, nil
}

// UploadBytes uploads in-memory content such as search screenshots.
func (u *GenAIUploader) UploadBytes(ctx context.Context, name string, data []byte, mimeType string) (ports.MediaRef, error) {
	file, err := u.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: name,
	})
	if err != nil {
		return ports.MediaRef{}, fmt.Errorf("upload %s: %w", name, err)
	}

	file, err = u.waitActive(ctx, file)
	if err != nil {
		return ports.MediaRef{}, fmt.Errorf("upload %s: %w", name, err)
	}

	u.logger.Debug().Str("name", name).Str("uri", file.URI).Msg("media uploaded")
	return ports.MediaRef{URI: file.URI, MIMEType: file.MIMEType, Name: file.Name}, nil
}

func (u *GenAIUploader) waitActive(ctx context.Context, file *genai.File) (*genai.File, error) {
	for file.State == genai.FileStateProcessing {
		if err := sleepFor(ctx, u.pollInterval); err != nil {
			return nil, err
		}
		next, err := u.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("poll file state: %w", err)
		}
		file = next
	}
	if file.State == genai.FileStateFailed {
		msg := "processing failed"
		if file.Error != nil && file.Error.Message != "" {
			msg = file.Error.Message
		}
		return nil, fmt.Errorf("file %s: %s", file.Name, msg)
	}
	return file, nil
}

// Extensions the platform MIME table does not reliably know.
var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".heic": "image/heic",
}

// DetectMIME prefers the file extension and falls back to content sniffing.
func DetectMIME(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return http.DetectContentType(data)
}

// DescribeImage summarizes EXIF capture metadata. GPS position is never
// included. Non-JPEG data or images without EXIF yield an empty string.
func DescribeImage(data []byte) string {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var details []string
	if tm, err := x.DateTime(); err == nil {
		details = append(details, "taken "+tm.Format("2006-01-02 15:04"))
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if o, err := tag.Int(0); err == nil && o != 1 {
			details = append(details, fmt.Sprintf("orientation %d", o))
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if model, err := tag.StringVal(); err == nil && strings.TrimSpace(model) != "" {
			details = append(details, "camera "+strings.TrimSpace(model))
		}
	}
	return strings.Join(details, ", ")
}

var _ ports.Uploader = (*GenAIUploader)(nil)
