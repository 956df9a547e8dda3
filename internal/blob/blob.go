// Package blob abstracts binary asset storage (profile pictures, media
// attachments) behind an upload/download-URL interface.
package blob

import (
	"context"
	"io"
)

// Store accepts bytes under a name and hands back a retrievable URL.
type Store interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
	DownloadURL(ctx context.Context, name string) (string, error)
}
