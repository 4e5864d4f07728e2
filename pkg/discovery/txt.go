package discovery

import "strings"

// TXT record keys some BMC firmwares put into their announcements.
const (
	// TXTKeyVendor names the BMC vendor.
	TXTKeyVendor = "vendor"

	// TXTKeyModel names the board or server model.
	TXTKeyModel = "model"

	// TXTKeyGUID is the system GUID.
	TXTKeyGUID = "guid"
)

// ParseTXT parses raw TXT records into a key-value map. Records without a
// key are ignored; a key without "=" maps to the empty string. Keys are
// case-insensitive and stored in lower case.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		key, value, _ := strings.Cut(record, "=")
		if key == "" {
			continue
		}
		result[strings.ToLower(key)] = value
	}
	return result
}
