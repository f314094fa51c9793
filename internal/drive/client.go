// Package drive lists and fetches plain-text files from Google Drive.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chmdznr/drivetext/pkg/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	textMimeType = "text/plain"
	listQuery    = "mimeType='" + textMimeType + "' and trashed=false"
	listFields   = "nextPageToken, files(id, name, modifiedTime)"
	pageSize     = 100
)

// Client wraps the Drive files API.
type Client struct {
	service *drive.Service
}

// NewClient builds a Drive client authorized with token. Refreshed tokens
// are written back to tokenPath when it is not empty.
func NewClient(ctx context.Context, config *oauth2.Config, token *oauth2.Token, tokenPath string) (*Client, error) {
	ts := config.TokenSource(ctx, token)
	if tokenPath != "" {
		ts = &savingTokenSource{base: ts, path: tokenPath, last: token.AccessToken}
	}
	srv, err := drive.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(token, ts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &Client{service: srv}, nil
}

// NewClientWithService wraps an already configured service.
func NewClientWithService(service *drive.Service) *Client {
	return &Client{service: service}
}

// ListTextFiles returns every non-trashed text/plain file visible to the
// account, following page tokens until the listing is exhausted.
func (c *Client) ListTextFiles(ctx context.Context) ([]models.RemoteFile, error) {
	var files []models.RemoteFile
	err := c.service.Files.List().
		Q(listQuery).
		Spaces("drive").
		Fields(listFields).
		PageSize(pageSize).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				modified, err := time.Parse(time.RFC3339, f.ModifiedTime)
				if err != nil {
					return fmt.Errorf("file %s has invalid modifiedTime %q: %w", f.Id, f.ModifiedTime, err)
				}
				files = append(files, models.RemoteFile{
					ID:         f.Id,
					Name:       f.Name,
					ModifiedAt: modified,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Export returns the content of a file as plain text. Files that Drive
// refuses to export (uploaded text files rather than Docs) are downloaded as-is.
func (c *Client) Export(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.service.Files.Export(fileID, textMimeType).Context(ctx).Download()
	if err == nil {
		return resp.Body, nil
	}
	if !isNotExportable(err) {
		return nil, fmt.Errorf("failed to export file %s: %w", fileID, err)
	}

	resp, err = c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	return resp.Body, nil
}

func isNotExportable(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == "fileNotExportable" {
			return true
		}
	}
	return strings.Contains(gerr.Message, "Export only supports")
}
