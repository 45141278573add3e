// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/medmatch/medmatch/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
