// Copyright 2025 The autocore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command autocore drives one autonomous-execution session from the
// terminal.
//
// Usage:
//
//	autocore run --config autocore.yaml "add pagination to the listing endpoint"
//	autocore resume --config autocore.yaml sess-1234
//	autocore checkpoints list --config autocore.yaml
//	autocore serve --config autocore.yaml
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI defines the autocore command-line surface.
type CLI struct {
	Run         RunCmd         `cmd:"" help:"Start a new autonomous-execution session."`
	Resume      ResumeCmd      `cmd:"" help:"Resume a paused or interrupted session from its checkpoint."`
	Checkpoints CheckpointsCmd `cmd:"" help:"Inspect stored checkpoints."`
	Serve       ServeCmd       `cmd:"" help:"Run the metrics and health HTTP server standalone."`
	Version     VersionCmd     `cmd:"" help:"Show version information."`

	Config    string   `short:"c" help:"Path to config file." type:"path" default:"autocore.yaml"`
	LogLevel  string   `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string   `help:"Log format (json, text)." default:"json"`
	Set       []string `help:"Override a config value, dotted-path=value (e.g. session.unattended=true). Repeatable."`
}

// VersionCmd prints build version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("autocore dev")
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("autocore"),
		kong.Description("Autonomous-execution core for an AI coding assistant."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
