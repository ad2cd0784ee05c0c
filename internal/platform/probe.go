package platform

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// mk3CutoffVersion is the first installer build shipping an MK3 firmware
// that may be updated automatically.
const mk3CutoffVersion = "202210050000"

// mk3UpdateDefault derives the default of the MK3 update switch from the
// installer-version file. Its third line holds the build timestamp.
func mk3UpdateDefault(installerVersion string) int64 {
	f, err := os.Open(installerVersion)
	if err != nil {
		return Mk3UpdateDisallowed
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for len(lines) < 3 && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) < 3 {
		return Mk3UpdateDisallowed
	}
	if build := strings.TrimSpace(lines[2]); build != "" && build >= mk3CutoffVersion {
		return Mk3UpdateNotApplicable
	}
	return Mk3UpdateDisallowed
}

// dataPartitionError reports whether the data partition failed to mount.
func dataPartitionError(stateFile string) bool {
	f, err := os.Open(stateFile)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return false
	}
	switch scanner.Text() {
	case "failed", "failed-to-mount":
		return true
	}
	return false
}

// templateExists reports whether a service template <dir>/<name>.conf is installed.
func templateExists(dir, name string) bool {
	if dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, name+".conf"))
	return err == nil
}

func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
