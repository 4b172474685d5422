package timing

import (
	"strconv"
	"sync/atomic"
)

var nextID uint64

// GenerateID returns a process-wide unique, monotonically increasing ID.
func GenerateID() string {
	idNumber := atomic.AddUint64(&nextID, 1)

	return strconv.FormatUint(idNumber, 10)
}
