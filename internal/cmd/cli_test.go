package cmd

import (
	"bytes"
	"context"
)

// PatchCLI returns a context holding a CLI whose streams are buffers, so tests
// can provide input to a command and read what it printed.
func PatchCLI(ctx context.Context) (context.Context, BufferedStreams) {
	bufs := BufferedStreams{
		Stdin:  new(bytes.Buffer),
		Stdout: new(bytes.Buffer),
		Stderr: new(bytes.Buffer),
	}
	cli := &CLI{Stdin: bufs.Stdin, Stdout: bufs.Stdout, Stderr: bufs.Stderr}
	return context.WithValue(ctx, ctxKey, cli), bufs
}

type BufferedStreams struct {
	Stdin  *bytes.Buffer
	Stdout *bytes.Buffer
	Stderr *bytes.Buffer
}
