//go:build unix

package action

import "golang.org/x/sys/unix"

// sameDevice reports whether a and b live on the same filesystem device, a
// precondition for os.Link to succeed; LinkPath falls back to LinkCopy when
// it doesn't. Grounded on libindex's per-platform openTemp build-tag split.
func sameDevice(a, b string) (bool, error) {
	var sa, sb unix.Stat_t
	if err := unix.Stat(a, &sa); err != nil {
		return false, err
	}
	if err := unix.Stat(b, &sb); err != nil {
		return false, err
	}
	return sa.Dev == sb.Dev, nil
}
