package security

import (
	"fmt"
	"os"
)

// File modes for what netrunner writes to disk.
const (
	PermLogFile   os.FileMode = 0640
	PermDBFile    os.FileMode = 0600
	PermDirectory os.FileMode = 0700
)

// AppendSecureFile opens path for appending, creating it with perm. The mode
// is applied after opening so the umask cannot widen it.
func AppendSecureFile(path string, perm os.FileMode) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := file.Chmod(perm); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return file, nil
}

// CreateSecureDir creates path and its parents, then forces perm on path
// even when it already existed.
func CreateSecureDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}

// EnsureSecurePermissions fails when path grants any bit outside expected.
func EnsureSecurePermissions(path string, expected os.FileMode) error {
	perm, err := modeOf(path)
	if err != nil {
		return err
	}
	if perm&^expected != 0 {
		return fmt.Errorf("%s has mode %04o, want at most %04o", path, perm, expected)
	}
	return nil
}

// ValidateSecurePermissions fails when path is readable or writable by
// others. Used for the config file, which may hold the Slack webhook.
func ValidateSecurePermissions(path string) error {
	perm, err := modeOf(path)
	if err != nil {
		return err
	}
	switch {
	case perm&0004 != 0:
		return fmt.Errorf("%s is world-readable (%04o) and may expose the webhook URL", path, perm)
	case perm&0002 != 0:
		return fmt.Errorf("%s is world-writable (%04o)", path, perm)
	}
	return nil
}

func modeOf(path string) (os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Mode().Perm(), nil
}
