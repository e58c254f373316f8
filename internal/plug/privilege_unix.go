//go:build linux

package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Drop root privilege after opening the raw socket and
 *		binding the control socket, both of which need root or
 *		CAP_NET_RAW/CAP_NET_ADMIN.
 *
 * Description:	Mirrors asokapy server.py's _reload, which calls
 *		os.setgid then os.setuid immediately after binding its
 *		listening socket, in that order (group first, since
 *		dropping the user first would forfeit the right to change
 *		group). Implemented over golang.org/x/sys/unix, the same
 *		package the teacher uses for its raw ioctl calls.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DropPrivileges sets the process's real/effective group then user
// ID, in that order. Call it after every privileged resource (the raw
// socket, the control socket) is already open; a nil uid or gid is
// treated as "leave unchanged" and skipped, mirroring the optional
// uid/gid keys in the master config section.
func DropPrivileges(uid, gid *int) error {
	if gid != nil {
		if err := unix.Setgid(*gid); err != nil {
			return fmt.Errorf("plug: setgid(%d): %w", *gid, err)
		}
	}

	if uid != nil {
		if err := unix.Setuid(*uid); err != nil {
			return fmt.Errorf("plug: setuid(%d): %w", *uid, err)
		}
	}

	return nil
}
