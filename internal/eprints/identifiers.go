package eprints

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"eprints2bags/internal/services"
)

var (
	rangePattern  = regexp.MustCompile(`^\s*(\d+)\s*-\s*(\d+)\s*$`)
	numberPattern = regexp.MustCompile(`^\s*\d+\s*$`)
)

// ParseIdentifiers turns the -i argument into the requested identifiers.
// Accepted forms are a single number, a comma list whose items may be
// inclusive ranges ("1-3,7"), a single inclusive range ("5-8"), or the path
// of a file with one identifier per line. An empty argument yields nil,
// meaning the caller should enumerate the server. Order of first
// appearance is preserved and duplicates are kept.
func ParseIdentifiers(arg string) ([]string, error) {
	arg = strings.TrimSpace(arg)
	switch {
	case arg == "":
		return nil, nil
	case strings.Contains(arg, ","):
		var ids []string
		for _, item := range strings.Split(arg, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if rangePattern.MatchString(item) {
				expanded, err := ExpandRange(item)
				if err != nil {
					return nil, err
				}
				ids = append(ids, expanded...)
				continue
			}
			ids = append(ids, item)
		}
		return ids, nil
	case numberPattern.MatchString(arg):
		return []string{arg}, nil
	case rangePattern.MatchString(arg):
		return ExpandRange(arg)
	default:
		return ReadIdentifierFile(arg)
	}
}

// MaxRangeSize caps how many identifiers one range may expand to.
const MaxRangeSize = 10_000_000

// ExpandRange expands "a-b" into every integer from a to b inclusive.
func ExpandRange(expr string) ([]string, error) {
	match := rangePattern.FindStringSubmatch(expr)
	if match == nil {
		return nil, rangeError(expr, "expected the form low-high")
	}
	low, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return nil, rangeError(expr, err.Error())
	}
	high, err := strconv.ParseUint(match[2], 10, 64)
	if err != nil {
		return nil, rangeError(expr, err.Error())
	}
	if high < low {
		return nil, rangeError(expr, "upper bound is below lower bound")
	}
	if high-low >= MaxRangeSize {
		return nil, rangeError(expr, fmt.Sprintf("spans more than %d identifiers", MaxRangeSize))
	}
	ids := make([]string, 0, high-low+1)
	for n := low; ; n++ {
		ids = append(ids, strconv.FormatUint(n, 10))
		if n == high {
			break
		}
	}
	return ids, nil
}

func rangeError(expr, reason string) error {
	return services.Wrap(services.ErrConfiguration, "identifiers", "range",
		fmt.Sprintf("invalid range %q: %s", expr, reason), nil)
}

// ReadIdentifierFile reads one identifier per line from a UTF-8 file. A
// leading byte-order mark is tolerated and blank lines are ignored.
func ReadIdentifierFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "identifiers", "open list", path, err)
	}
	defer file.Close()

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(file, decoder))
	var ids []string
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "identifiers", "read list", path, err)
	}
	return ids, nil
}
