// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/CascadiaAI/CascadiaMind/cmd/mindctl/gcs"
	"github.com/CascadiaAI/CascadiaMind/pkg/ux"
)

// runUploadArchives ships an exported archive file, or a directory of
// them, to the configured GCS bucket.
func runUploadArchives(cmd *cobra.Command, args []string) {
	target := args[0]

	bucket := uploadBucket
	if bucket == "" {
		bucket = config.Upload.Bucket
	}
	project := uploadProject
	if project == "" {
		project = config.Upload.Project
	}
	keyFile := uploadKeyFile
	if keyFile == "" {
		keyFile = config.Upload.KeyFile
	}
	if bucket == "" {
		ux.Error("No bucket given. Pass --bucket or set upload.bucket in the config file.")
		os.Exit(1)
	}

	info, err := os.Stat(target)
	if err != nil {
		ux.Error("Cannot read " + target + ": " + err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := gcs.NewClient(ctx, project, bucket, keyFile)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	defer client.Close()

	spin := ux.NewSpinner(fmt.Sprintf("Uploading to gs://%s/%s...", bucket, uploadPrefix))
	spin.Start()

	if info.IsDir() {
		count, err := client.UploadDir(ctx, target, uploadPrefix)
		spin.Stop()
		if err != nil {
			ux.Error(fmt.Sprintf("Upload failed after %d files: %v", count, err))
			os.Exit(1)
		}
		ux.Success(fmt.Sprintf("Uploaded %d files to gs://%s/%s", count, bucket, uploadPrefix))
		return
	}

	objectName := filepath.Base(target)
	if uploadPrefix != "" {
		objectName = uploadPrefix + "/" + objectName
	}
	err = client.UploadFile(ctx, target, objectName)
	spin.Stop()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Uploaded %s to gs://%s/%s", target, bucket, objectName))
}
