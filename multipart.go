package webmod

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
)

// MultipartBoundary returns the boundary parameter of a multipart/form-data
// content type, or "" when contentType is anything else.
func MultipartBoundary(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		return ""
	}
	return params["boundary"]
}

// ParseMultipart splits body into file parts and plain form values. Parts
// with a filename become files; the rest are collected as form values.
func ParseMultipart(body []byte, boundary string) ([]MultipartFile, map[string][]string, error) {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	var files []MultipartFile
	form := make(map[string][]string)
	for {
		part, err := reader.NextRawPart()
		// A wrapped EOF means the input ended before the closing boundary.
		if err == io.EOF { //nolint:errorlint
			return files, form, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrMalformedMultipart, err)
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrMalformedMultipart, err)
		}
		name := part.FormName()
		if filename := part.FileName(); filename != "" {
			files = append(files, MultipartFile{
				Name:        name,
				Filename:    filename,
				ContentType: part.Header.Get("Content-Type"),
				Data:        data,
			})
			continue
		}
		if name != "" {
			form[name] = append(form[name], string(data))
		}
	}
}
