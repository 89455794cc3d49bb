package recorder

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace is returned by Start when the output volume is too full.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// diskFree is replaced in tests.
var diskFree = func(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// checkDiskSpace fails when dir has less than minFree bytes available. A
// failed lookup is logged and ignored.
func checkDiskSpace(dir string, minFree uint64) error {
	if minFree == 0 {
		return nil
	}
	free, err := diskFree(dir)
	if err != nil {
		log.Warn("disk space check failed, continuing", "dir", dir, "error", err)
		return nil
	}
	if free < minFree {
		return fmt.Errorf("%w: %s free in %s, need %s", ErrInsufficientSpace,
			humanize.IBytes(free), dir, humanize.IBytes(minFree))
	}
	log.Debug("disk space ok", "dir", dir, "free", humanize.IBytes(free))
	return nil
}
