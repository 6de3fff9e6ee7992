package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalFilesystem is the entity which provides local filesystem storage
type LocalFilesystem struct {
	basePath   string
	publicPath string
}

// NewLocalFilesystem returns a new LocalFilesystem. The base folder is
// created if it does not exist yet.
func NewLocalFilesystem(config LocalConfiguration) (*LocalFilesystem, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("BasePath must not be empty")
	}
	if err := os.MkdirAll(config.BasePath, 0700); err != nil {
		return nil, err
	}
	publicPath := config.PublicPath
	if publicPath == "" {
		publicPath = "/uploads"
	}
	return &LocalFilesystem{basePath: config.BasePath, publicPath: strings.TrimSuffix(publicPath, "/")}, nil
}

// BasePath returns the directory files are written to, so the service
// binary can serve it statically.
func (f LocalFilesystem) BasePath() string {
	return f.basePath
}

// Put writes data to the key file, overwriting any previous content.
// The content type is ignored, the file server sniffs it on delivery.
func (f LocalFilesystem) Put(key string, contentType string, data []byte) error {
	if strings.Contains(key, "..") || strings.ContainsRune(key, '/') {
		return fmt.Errorf("invalid key '%s'", key)
	}
	return os.WriteFile(filepath.Join(f.basePath, key), data, 0600)
}

// Delete deletes the key file
func (f LocalFilesystem) Delete(key string) error {
	if strings.Contains(key, "..") || strings.ContainsRune(key, '/') {
		return fmt.Errorf("invalid key '%s'", key)
	}
	err := os.Remove(filepath.Join(f.basePath, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// URL returns the public URL for the key with a timestamp query
// parameter appended to defeat browser caching.
func (f LocalFilesystem) URL(key string) (string, error) {
	if strings.Contains(key, "..") || strings.ContainsRune(key, '/') {
		return "", fmt.Errorf("invalid key '%s'", key)
	}
	return fmt.Sprintf("%s/%s?v=%d", f.publicPath, key, time.Now().UnixMilli()), nil
}
