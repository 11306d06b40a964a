// Package imagestore persists extracted image bytes.
package imagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/xhad/pdfalt/internal/types"
)

// Dir stores images as files in a local folder, created on first use.
type Dir struct {
	Path string
}

func NewDir(path string) *Dir {
	return &Dir{Path: path}
}

func (d *Dir) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name != filepath.Base(name) {
		return fmt.Errorf("invalid image name %q", name)
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.Path, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write image %s: %w", name, err)
	}
	return nil
}

// Discard drops all images.
type Discard struct{}

func (Discard) Put(context.Context, string, []byte) error { return nil }

type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// Azure stores images as block blobs in one container.
type Azure struct {
	client    blobUploader
	container string
	prefix    string
}

type AzureConfig struct {
	AccountName string
	AccountKey  string
	Container   string
	// Prefix is prepended to every blob name, e.g. the document's base name.
	Prefix string
}

func NewAzure(config AzureConfig) (*Azure, error) {
	if config.Container == "" {
		return nil, fmt.Errorf("azure container is required")
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return &Azure{client: client, container: config.Container, prefix: config.Prefix}, nil
}

func (a *Azure) Put(ctx context.Context, name string, data []byte) error {
	blob := name
	if a.prefix != "" {
		blob = a.prefix + "/" + name
	}
	if _, err := a.client.UploadBuffer(ctx, a.container, blob, data, nil); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

var (
	_ types.ImageSink = (*Dir)(nil)
	_ types.ImageSink = Discard{}
	_ types.ImageSink = (*Azure)(nil)
)
