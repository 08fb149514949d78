// Package entity defines uploaded and stored cover images.
package entity

import "io"

// Upload is a file part accepted by the upload gate and not yet processed.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// StoredImage is a processed cover persisted in an image store.
// Key is the storage key, URL its public address.
type StoredImage struct {
	Key string
	URL string
}
