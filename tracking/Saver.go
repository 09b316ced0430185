package tracking

import (
	"encoding/gob"

	"github.com/neardws/aovrl/utils/fileutils"
)

// Saver persists an object when invoked. Invocation cadence is the
// caller's concern; how often an invocation actually writes is the
// Saver's.
type Saver interface {
	Save() error
}

// Serializable is an object that can be saved and restored
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// nStep saves a Serializable on every n-th invocation
type nStep struct {
	interval int
	calls    int
	object   Serializable

	// filename returns the path of the next file to write. Use
	// fileutils.TimestampedFilename to generate distinct files per
	// save.
	filename func() string
}

// NewNStep returns a Saver that writes its object on every n-th Save
// call
func NewNStep(n int, object Serializable, filename func() string) Saver {
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}
}

// Save counts one invocation and writes the object when the
// invocation count reaches a multiple of the interval
func (n *nStep) Save() error {
	n.calls++
	if n.calls%n.interval != 0 {
		return nil
	}
	return fileutils.SaveGob(n.filename(), n.object)
}
