// Package ids issues the row identifiers used across the document store,
// version snapshots, and the audit trail.
package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var gen = struct {
	sync.Mutex
	entropy io.Reader
}{entropy: ulid.Monotonic(rand.Reader, 0)}

// New returns a ULID. IDs issued by one process sort in creation order,
// which collection cursors rely on as a tiebreak.
func New() string {
	gen.Lock()
	defer gen.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), gen.entropy).String()
}
