// Package cliopts holds the CLI front-end's own option defaults, mirroring
// the teacher's internal/settings package: a single exported struct with a
// Default constructor, no environment variables, no config file.
package cliopts

import "io"

// Settings controls how cmd/romfsls renders listings.
type Settings struct {
	// Recursive makes the ls/tree subcommands descend into subdirectories.
	Recursive bool
	// Human renders file sizes with KB/MB/GB units instead of raw bytes.
	Human bool
	// Out is where listings are written.
	Out io.Writer
}

// Default returns the settings used when no flags override them.
func Default(out io.Writer) Settings {
	return Settings{
		Recursive: false,
		Human:     true,
		Out:       out,
	}
}
