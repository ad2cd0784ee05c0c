package canbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PathInterfaces is the platform value listing the CAN interfaces.
const PathInterfaces = "CanBus/Interfaces"

// arphrdCAN is the link type of CAN interfaces (linux/if_arp.h).
const arphrdCAN = 280

// iffUp is the IFF_UP interface flag.
const iffUp = 0x1

// Interface is one CAN network interface.
type Interface struct {
	Name string `json:"interface"`
	Up   bool   `json:"up"`
}

// Enumerate lists the CAN interfaces below sysClassNet, sorted by name.
// A missing directory yields an empty list.
func Enumerate(sysClassNet string) ([]Interface, error) {
	entries, err := os.ReadDir(sysClassNet)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Interface{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", sysClassNet, err)
	}

	out := []Interface{}
	for _, e := range entries {
		dir := filepath.Join(sysClassNet, e.Name())
		linkType, ok := readInt(filepath.Join(dir, "type"), 10)
		if !ok || linkType != arphrdCAN {
			continue
		}
		flags, _ := readInt(filepath.Join(dir, "flags"), 0)
		out = append(out, Interface{Name: e.Name(), Up: flags&iffUp != 0})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func readInt(path string, base int) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), base, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// encode renders the interface list as published.
func encode(list []Interface) (string, error) {
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encoding CAN interfaces: %w", err)
	}
	return string(data), nil
}
