// Package upload stores message attachments on local disk.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/log"
	"github.com/parleyhq/parley-server/internal/store"
)

var (
	// ErrTooManyFiles is returned when a request carries more files than allowed.
	ErrTooManyFiles = errors.New("too many files")
	// ErrFileTooLarge is returned when a file exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("empty file")
)

const messagesSubdir = "messages"

// Store saves uploaded files under <root>/messages and serves them at
// <urlPrefix>/messages/<name>.
type Store struct {
	dir         string
	urlPrefix   string
	maxFileSize int64
	maxFiles    int
	log         *zerolog.Logger
}

// New creates the upload directory if needed.
func New(root, urlPrefix string, maxFileSize int64, maxFiles int, logger *zerolog.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Nop()
	}
	dir := filepath.Join(root, messagesSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:         dir,
		urlPrefix:   path.Join("/", urlPrefix, messagesSubdir),
		maxFileSize: maxFileSize,
		maxFiles:    maxFiles,
		log:         logger,
	}, nil
}

// Dir returns the directory attachments are written to.
func (s *Store) Dir() string {
	return s.dir
}

// SaveAll stores every file or none of them.
func (s *Store) SaveAll(files []*multipart.FileHeader) ([]store.Attachment, error) {
	if len(files) > s.maxFiles {
		return nil, fmt.Errorf("%w: at most %d", ErrTooManyFiles, s.maxFiles)
	}

	out := make([]store.Attachment, 0, len(files))
	for _, fh := range files {
		a, err := s.Save(fh)
		if err != nil {
			s.Discard(out)
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Save writes one file with a random name, keeping the original extension.
func (s *Store) Save(fh *multipart.FileHeader) (store.Attachment, error) {
	if fh.Size > s.maxFileSize {
		return store.Attachment{}, fmt.Errorf("%w: %s", ErrFileTooLarge, fh.Filename)
	}

	src, err := fh.Open()
	if err != nil {
		return store.Attachment{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return store.Attachment{}, fmt.Errorf("detect type: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return store.Attachment{}, fmt.Errorf("rewind upload: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext == "" {
		ext = mtype.Extension()
	}
	name := uuid.NewString() + ext

	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return store.Attachment{}, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(dst, io.LimitReader(src, s.maxFileSize+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		_ = s.Remove(name)
		return store.Attachment{}, fmt.Errorf("write file: %w", err)
	case n == 0:
		_ = s.Remove(name)
		return store.Attachment{}, fmt.Errorf("%w: %s", ErrEmptyFile, fh.Filename)
	case n > s.maxFileSize:
		_ = s.Remove(name)
		return store.Attachment{}, fmt.Errorf("%w: %s", ErrFileTooLarge, fh.Filename)
	}

	s.log.Debug().Str("file", name).Str("mime", mtype.String()).Int64("size", n).Msg("attachment stored")
	return store.Attachment{
		Filename:     name,
		OriginalName: filepath.Base(fh.Filename),
		MimeType:     mtype.String(),
		Size:         n,
		URL:          s.urlPrefix + "/" + name,
	}, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(filename string) error {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid filename %q", filename)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Discard removes files saved for a request that later failed.
func (s *Store) Discard(attachments []store.Attachment) {
	for _, a := range attachments {
		if err := s.Remove(a.Filename); err != nil {
			s.log.Warn().Err(err).Str("file", a.Filename).Msg("failed to discard attachment")
		}
	}
}
