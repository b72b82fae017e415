// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gcs uploads exported session archives to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Client wraps a GCS client bound to one bucket.
type Client struct {
	client  *storage.Client
	Project string
	Bucket  string
}

// NewClient creates a storage client for the given project and bucket.
// With an empty keyPath it uses application default credentials; otherwise
// the service account key file at keyPath must exist.
func NewClient(ctx context.Context, project, bucket, keyPath string) (*Client, error) {
	var opts []option.ClientOption
	if keyPath != "" {
		if _, err := os.Stat(keyPath); err != nil {
			return nil, fmt.Errorf("service account key not found at %s: %w", keyPath, err)
		}
		opts = append(opts, option.WithCredentialsFile(keyPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Client{
		client:  client,
		Project: project,
		Bucket:  bucket,
	}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.client.Close()
}

// UploadFile copies one local file into the bucket under objectName.
func (c *Client) UploadFile(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	obj := c.client.Bucket(c.Bucket).Object(objectName)
	w := obj.NewWriter(ctx)
	w.ContentType = contentTypeFor(localPath)
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("failed to copy %s to gs://%s/%s: %w", localPath, c.Bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", c.Bucket, objectName, err)
	}
	return nil
}

// UploadDir walks dir and uploads every regular file, preserving the
// relative layout under prefix. Returns the number of files uploaded.
func (c *Client) UploadDir(ctx context.Context, dir, prefix string) (int, error) {
	uploaded := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		objectName := filepath.ToSlash(rel)
		if prefix != "" {
			objectName = strings.TrimSuffix(prefix, "/") + "/" + objectName
		}
		if err := c.UploadFile(ctx, path, objectName); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, err
	}
	return uploaded, nil
}

// contentTypeFor maps archive extensions to content types so exported
// JSON renders in-browser instead of downloading.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
