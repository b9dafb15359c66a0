//go:build !windows

package authwatch

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// ensureReadable fails early when the auth log is not readable by the
// current user. On Debian-style systems /var/log/auth.log is root:adm 0640,
// so the error names the group that grants access.
func ensureReadable(path string, info fs.FileInfo) error {
	if info == nil {
		var err error
		info, err = os.Stat(path)
		if err != nil {
			return err
		}
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a log file", path)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	perms := info.Mode().Perm()
	euid := os.Geteuid()
	if euid == 0 {
		return nil
	}

	if int(stat.Uid) == euid {
		if perms&0o400 == 0 {
			return fmt.Errorf("cannot read %s: owner read bit is not set", path)
		}
		return nil
	}

	if inGroup(int(stat.Gid)) {
		if perms&0o040 == 0 {
			return fmt.Errorf("cannot read %s: group read bit is not set", path)
		}
		return nil
	}

	if perms&0o004 == 0 {
		return fmt.Errorf("cannot read %s: not a member of group %d (try running with sudo or joining the adm group)", path, stat.Gid)
	}

	return nil
}

func inGroup(gid int) bool {
	if os.Getegid() == gid {
		return true
	}
	groups, err := syscall.Getgroups()
	if err != nil {
		return false
	}
	for _, g := range groups {
		if g == gid {
			return true
		}
	}
	return false
}
