// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/CascadiaAI/CascadiaMind/pkg/ux"
)

// printJSON writes v to stdout as indented JSON for --json output.
func printJSON(v interface{}) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		ux.Error("Failed to encode response: " + err.Error())
		os.Exit(1)
	}
	fmt.Println(string(raw))
}

// clockTime renders a Unix-millisecond timestamp as local wall clock time.
func clockTime(milli int64) string {
	return time.UnixMilli(milli).Local().Format("15:04:05")
}

// archiveFileName builds the default export filename for a session.
func archiveFileName(session string) string {
	return fmt.Sprintf("mindsim_%s_%s.json", session, time.Now().Format("20060102"))
}
