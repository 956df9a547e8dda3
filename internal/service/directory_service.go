package service

import (
	"context"
	"fmt"
	"io"

	"github.com/genericchat/backend/internal/blob"
	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/identity"
)

// DirectoryService exposes the user directory: existence checks, the
// denormalized search index, and profile pictures.
type DirectoryService struct {
	directory domain.DirectoryRepository
	blobs     blob.Store
}

func NewDirectoryService(directory domain.DirectoryRepository, blobs blob.Store) *DirectoryService {
	return &DirectoryService{directory: directory, blobs: blobs}
}

// AccountExists reports whether an account is registered under the key.
// Absence is a valid state, not an error.
func (s *DirectoryService) AccountExists(ctx context.Context, key domain.CanonicalKey) (bool, error) {
	return s.directory.AccountExists(ctx, key)
}

func (s *DirectoryService) Account(ctx context.Context, key domain.CanonicalKey) (*domain.Account, error) {
	return s.directory.AccountByKey(ctx, key)
}

// ListAccounts returns the full searchable index. An empty directory yields
// an empty slice; the backing store does not distinguish "never created".
func (s *DirectoryService) ListAccounts(ctx context.Context) ([]domain.DirectoryEntry, error) {
	return s.directory.ListEntries(ctx)
}

func (s *DirectoryService) SearchAccounts(ctx context.Context, query string) ([]domain.DirectoryEntry, error) {
	if query == "" {
		return s.directory.ListEntries(ctx)
	}
	return s.directory.SearchEntries(ctx, query)
}

// SetProfilePicture uploads the picture bytes to the blob store and records
// the reference on the account. This is the only mutable account field.
func (s *DirectoryService) SetProfilePicture(ctx context.Context, key domain.CanonicalKey, r io.Reader) (string, error) {
	name := identity.ProfilePictureName(key)
	url, err := s.blobs.Upload(ctx, name, r)
	if err != nil {
		return "", fmt.Errorf("upload profile picture: %w", err)
	}
	if err := s.directory.SetAvatar(ctx, key, name); err != nil {
		return "", err
	}
	return url, nil
}

// ProfilePictureURL resolves the download URL of an account's picture.
func (s *DirectoryService) ProfilePictureURL(ctx context.Context, key domain.CanonicalKey) (string, error) {
	return s.blobs.DownloadURL(ctx, identity.ProfilePictureName(key))
}
