package web

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
)

const cpuTempPath = "/sys/class/thermal/thermal_zone0/temp"

// systemSnapshot gathers host facts worth seeing from across the
// playa: how hot the Pi is and where to point a browser. Everything is
// best-effort.
func systemSnapshot() SystemSnapshot {
	out := SystemSnapshot{LocalAddrs: localInterfaceAddrs()}
	if c, err := readCPUTempCFromPath(cpuTempPath); err == nil {
		out.CPUTempC = &c
	}
	return out
}

func parseCPUTempC(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("cpu temp empty")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse cpu temp %q: %w", s, err)
	}
	// Linux typically exposes milli-deg-C integers (e.g. 52345), but
	// some systems report plain degrees.
	if n > 1000 {
		return float64(n) / 1000.0, nil
	}
	return float64(n), nil
}

func readCPUTempCFromPath(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read cpu temp: %w", err)
	}
	return parseCPUTempC(string(b))
}

func localInterfaceAddrs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	out := make([]string, 0, 8)
	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			if ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, iface.Name+": "+ipnet.String())
		}
	}

	sort.Strings(out)
	return out
}
