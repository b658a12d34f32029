package weft

import (
	"fmt"
	"io"
	"mime/multipart"
)

// FileUpload holds a parsed file from a multipart form upload.
// Declare a FileUpload (or []FileUpload) field with a form tag to
// receive uploads.
type FileUpload struct {
	Filename string
	Size     int64
	Header   *multipart.FileHeader
	file     multipart.File
}

// Open returns a reader for the uploaded file contents.
func (f *FileUpload) Open() (io.ReadCloser, error) {
	if f.file != nil {
		return f.file, nil
	}
	if f.Header == nil {
		return nil, fmt.Errorf("no file header")
	}
	file, err := f.Header.Open()
	if err != nil {
		return nil, err
	}
	f.file = file
	return file, nil
}

// ContentType reports the Content-Type declared in the upload's part
// header, or empty if none was sent.
func (f *FileUpload) ContentType() string {
	if f.Header == nil {
		return ""
	}
	return f.Header.Header.Get("Content-Type")
}
