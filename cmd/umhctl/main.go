// Command umhctl inspects monitor configuration files, identity profiles
// and controller pipe traffic.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/umhmon/umh/internal/cli"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

func versionString() string {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}
	c := strings.TrimSpace(commit)
	if c == "" || strings.Contains(v, c) {
		return v
	}
	return v + "+" + c
}

func main() {
	err := cli.NewRoot(versionString()).ExecuteContext(context.Background())
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "umhctl:", err)
	os.Exit(cli.ExitCode(err))
}
