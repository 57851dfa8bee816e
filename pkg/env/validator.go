package env

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var hexBodyPattern = regexp.MustCompile(`^[0-9a-fA-F]{1,64}$`)

func IsEmpty(value string) bool {
	return strings.TrimSpace(value) == ""
}

// IsValidObjectID reports whether value is a 0x-prefixed ledger object id or address of
// at most 32 bytes. Short forms such as "0x6" are accepted.
func IsValidObjectID(value string) bool {
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		return false
	}
	body := value[2:]
	if !hexBodyPattern.MatchString(body) {
		return false
	}
	if len(body)%2 == 1 {
		body = "0" + body
	}
	decoded, err := hexutil.Decode("0x" + body)
	return err == nil && len(decoded) <= 32
}

// NormalizeObjectID lower-cases and left-pads an object id to 32 bytes.
func NormalizeObjectID(value string) string {
	if !IsValidObjectID(value) {
		return value
	}
	body := strings.ToLower(value[2:])
	return "0x" + strings.Repeat("0", 64-len(body)) + body
}

func IsValidPort(port string) bool {
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}

func IsValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
