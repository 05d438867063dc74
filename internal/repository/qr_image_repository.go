package repository

import (
    "context"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
)

// QRImageRepo writes rendered QR codes into a directory served as static
// assets.  File names are derived from ticket identifiers, which are fresh
// UUIDs, so concurrent writers never target the same file.
type QRImageRepo struct {
    dir     string
    baseURL string
}

// NewQRImageRepo stores images under dir; baseURL is the public URL that dir
// is served at (for example http://host/static/qr).
func NewQRImageRepo(dir, baseURL string) *QRImageRepo {
    return &QRImageRepo{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Save writes data to <dir>/<name>.  The file is written under a temporary
// name and renamed so readers never observe a partial image.
func (r *QRImageRepo) Save(_ context.Context, name string, data []byte) error {
    if name == "" || name != filepath.Base(name) {
        return fmt.Errorf("qr image: invalid name %q", name)
    }
    if err := os.MkdirAll(r.dir, 0o755); err != nil {
        return fmt.Errorf("qr image: mkdir: %w", err)
    }
    tmp, err := os.CreateTemp(r.dir, "."+name+".*")
    if err != nil {
        return fmt.Errorf("qr image: create: %w", err)
    }
    if _, err := tmp.Write(data); err != nil {
        _ = tmp.Close()
        _ = os.Remove(tmp.Name())
        return fmt.Errorf("qr image: write: %w", err)
    }
    if err := tmp.Close(); err != nil {
        _ = os.Remove(tmp.Name())
        return fmt.Errorf("qr image: close: %w", err)
    }
    if err := os.Chmod(tmp.Name(), 0o644); err != nil {
        _ = os.Remove(tmp.Name())
        return fmt.Errorf("qr image: chmod: %w", err)
    }
    if err := os.Rename(tmp.Name(), filepath.Join(r.dir, name)); err != nil {
        _ = os.Remove(tmp.Name())
        return fmt.Errorf("qr image: rename: %w", err)
    }
    return nil
}

// Remove deletes the image saved under name.  A missing file is not an error.
func (r *QRImageRepo) Remove(_ context.Context, name string) error {
    if name == "" || name != filepath.Base(name) {
        return fmt.Errorf("qr image: invalid name %q", name)
    }
    if err := os.Remove(filepath.Join(r.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
        return fmt.Errorf("qr image: remove: %w", err)
    }
    return nil
}

// URL returns the public URL of an image saved under name.
func (r *QRImageRepo) URL(name string) string { return r.baseURL + "/" + name }

// Path returns the file system location of an image saved under name.
func (r *QRImageRepo) Path(name string) string { return filepath.Join(r.dir, name) }
