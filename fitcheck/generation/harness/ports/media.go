package harnessports

import "context"

// MediaRef is a handle to a file already uploaded to the model service.
type MediaRef struct {
	URI      string
	MIMEType string
	Name     string
	Details  string // capture metadata of the local original, if known
}

// Uploader makes local media referenceable by the model.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (MediaRef, error)
	UploadBytes(ctx context.Context, name string, data []byte, mimeType string) (MediaRef, error)
}
