package drivers

import (
	"os"
	"strconv"
	"strings"
)

// readMeminfo returns MemTotal and MemAvailable in kB from /proc/meminfo.
// Older kernels lack MemAvailable; MemFree is used instead.
func readMeminfo(path string) (total, avail int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	free := 0
	for _, ln := range strings.Split(string(data), "\n") {
		fields := strings.Fields(ln)
		if len(fields) < 2 {
			continue
		}
		v, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			avail = v
		case "MemFree:":
			free = v
		}
	}
	if avail == 0 {
		avail = free
	}
	return total, avail, nil
}
