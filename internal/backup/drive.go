// Package backup uploads database snapshots to a Google Drive folder so a
// session archive survives the host machine.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type Uploader struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewUploader(ctx context.Context, credPath, folderID string) (*Uploader, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Uploader{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// Upload pushes a snapshot file for the given date, replacing the
// previously uploaded snapshot for that date if one exists. Snapshots are
// stored as plain binary files, one per day.
func (u *Uploader) Upload(localPath, date string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := u.fileIDs[date]; ok {
		_, err = u.service.Files.Update(fileID, &drive.File{}).Media(f).Do()
		if err == nil {
			return nil
		}
		// The remote copy may have been deleted out from under us;
		// fall through and create a fresh file.
		if gerr, ok := err.(*googleapi.Error); !ok || gerr.Code != 404 {
			return fmt.Errorf("drive update: %w", err)
		}
		delete(u.fileIDs, date)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind snapshot: %w", err)
		}
	}

	file, err := u.service.Files.Create(&drive.File{
		Name:     fmt.Sprintf("earshot-%s.db", date),
		MimeType: "application/octet-stream",
		Parents:  []string{u.folderID},
	}).Media(f).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	u.fileIDs[date] = file.Id
	return nil
}
