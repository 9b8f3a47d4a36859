package preflight

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"eprints2bags/internal/eprints"
	"eprints2bags/internal/network"
	"eprints2bags/internal/services"
)

// KnownSubdirLimits is the maximum number of subdirectories per directory
// for filesystems that impose one.
var KnownSubdirLimits = map[string]int{
	"ext2": 31998,
	"ext3": 31998,
}

// MountsFile is read to name the filesystem holding a path.
var MountsFile = "/proc/self/mounts"

// CheckNetwork verifies that the wider network answers at all.
func CheckNetwork(ctx context.Context, client *network.Client) Result {
	const name = "Network"

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if !client.NetworkAvailable(checkCtx) {
		return Result{Name: name, Detail: "no network connection"}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckServer verifies the EPrints listing endpoint accepts the configured
// credentials. Only the response status is read; the listing itself is
// left for the enumerator.
func CheckServer(ctx context.Context, client *network.Client, server eprints.Server) Result {
	const name = "EPrints server"

	rawURL, err := server.URL(eprints.ListingPath)
	if err != nil {
		return Result{Name: name, Detail: services.Details(err).Message}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	status, err := client.Status(checkCtx, rawURL, network.ModePoll)
	switch {
	case errors.Is(err, services.ErrAuthentication):
		return Result{Name: name, Detail: "authentication failed (check user and password)"}
	case err != nil:
		return Result{Name: name, Detail: services.Details(err).Message}
	case status >= 400:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable, no listing (%d)", status)}
	default:
		return Result{Name: name, Passed: true, Detail: "reachable"}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOutputDirectory is CheckDirectoryAccess for a directory the run may
// create: when path does not exist yet, its nearest existing ancestor must
// be writable instead.
func CheckOutputDirectory(name, path string) Result {
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	}
	ancestor := nearestExisting(path)
	res := CheckDirectoryAccess(name, ancestor)
	if res.Passed {
		res.Detail = fmt.Sprintf("%s (will be created under %s)", path, ancestor)
	}
	return res
}

// CheckSubdirLimit fails when records directories would exceed the
// subdirectory limit of the filesystem holding dir.
func CheckSubdirLimit(dir string, records int) Result {
	const name = "Filesystem capacity"

	fsType := FilesystemType(nearestExisting(dir))
	limit, bounded := KnownSubdirLimits[fsType]
	if !bounded {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s records on %s", humanize.Comma(int64(records)), displayFS(fsType))}
	}
	if records > limit {
		return Result{Name: name, Detail: fmt.Sprintf("%s is too many folders for the %s file system at %s (limit %s)",
			humanize.Comma(int64(records)), fsType, dir, humanize.Comma(int64(limit)))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s records within %s limit of %s",
		humanize.Comma(int64(records)), fsType, humanize.Comma(int64(limit)))}
}

// FilesystemType names the filesystem holding path, preferring the mount
// table and falling back to the statfs magic number. Unknown filesystems
// return "".
func FilesystemType(path string) string {
	if fsType := mountType(path); fsType != "" {
		return fsType
	}
	return statfsType(path)
}

func mountType(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	f, err := os.Open(MountsFile)
	if err != nil {
		return ""
	}
	defer f.Close()

	best, bestType := "", ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mountPoint := unescapeMount(fields[1])
		if !within(abs, mountPoint) || len(mountPoint) < len(best) {
			continue
		}
		best, bestType = mountPoint, fields[2]
	}
	return bestType
}

func within(path, mountPoint string) bool {
	if mountPoint == "/" {
		return true
	}
	return path == mountPoint || strings.HasPrefix(path, mountPoint+"/")
}

// unescapeMount decodes the octal escapes the kernel uses for spaces and
// tabs in mount points.
func unescapeMount(s string) string {
	return strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`).Replace(s)
}

func nearestExisting(path string) string {
	current := filepath.Clean(path)
	for {
		if _, err := os.Stat(current); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current
		}
		current = parent
	}
}

func displayFS(fsType string) string {
	if fsType == "" {
		return "an unrecognized file system"
	}
	return fsType
}
