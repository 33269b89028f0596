package status

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the provider-independent state of a transaction or subscription.
type Status string

const (
	Pending    Status = "PENDING"
	Processing Status = "PROCESSING"
	Completed  Status = "COMPLETED"
	Failed     Status = "FAILED"
	Cancelled  Status = "CANCELLED"
	Unknown    Status = "UNKNOWN"
)

// All lists every member of the enumeration.
var All = []Status{Pending, Processing, Completed, Failed, Cancelled, Unknown}

func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the enumeration values.
func (s Status) IsValid() bool {
	switch s {
	case Pending, Processing, Completed, Failed, Cancelled, Unknown:
		return true
	}
	return false
}

// IsTerminal reports whether s ends the lifecycle. Unknown is not terminal:
// later polls or webhooks may still move it.
func (s Status) IsTerminal() bool {
	switch s {
	case Completed, Failed, Cancelled:
		return true
	}
	return false
}

// Parse converts a string into a Status, ignoring case.
func Parse(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Mapping translates a provider's native vocabulary into Status.
type Mapping map[string]Status

// Map returns the unified status for a native value. Lookups ignore case and
// surrounding whitespace; values missing from the table map to Unknown.
func (m Mapping) Map(native string) Status {
	key := strings.TrimSpace(native)
	if st, ok := m[key]; ok {
		return st
	}
	for k, st := range m {
		if strings.EqualFold(k, key) {
			return st
		}
	}
	return Unknown
}

// Natives returns the table's native values in sorted order.
func (m Mapping) Natives() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
