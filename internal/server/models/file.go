// Package models defines the data passed between the upload pipeline, the
// object store and the metadata catalog.
package models

import (
	"io"
	"time"
)

// FileMetadata is one row of metadata.file_metadata. Rows are append-only:
// written once after a successful transfer and never updated.
type FileMetadata struct {
	ID            int64     `json:"id"`
	FileName      string    `json:"file_name"`
	FileSizeBytes int64     `json:"file_size"`
	FileExtension string    `json:"file_extension"`
	Folder        string    `json:"folder"`
	FolderURL     string    `json:"folder_url"`
	FileURL       string    `json:"file_url"`
	UploadedAt    time.Time `json:"upload_datetime"`
}

// FileItem is one uploaded file as handed over by the transport layer.
// Content must be readable before processing starts.
type FileItem struct {
	Name    string
	Size    int64
	Content io.ReadSeeker
}

// ResolvedLocation is where a file lands in the object store.
type ResolvedLocation struct {
	Bucket    string
	Folder    string
	ObjectKey string
}
