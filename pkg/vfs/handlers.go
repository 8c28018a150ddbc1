package vfs

import (
	"context"

	"github.com/morezero/void-worker/pkg/dispatcher"
	"github.com/morezero/void-worker/pkg/protocol"
)

// Register installs the filesystem commands on d.
func Register(d *dispatcher.Dispatcher, f *FS) {
	d.Register("fs.clear", func(ctx context.Context, _ protocol.Value) dispatcher.Outcome {
		if err := f.Clear(ctx); err != nil {
			return dispatcher.Fail(err)
		}
		return dispatcher.Single(nil)
	})
}
