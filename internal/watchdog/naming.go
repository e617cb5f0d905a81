package watchdog

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// BucketSize is the granularity of the time suffix in socket names.
const BucketSize = 10 * time.Second

// SocketName returns the rendezvous name for the bucket containing now.
// Two calls inside the same bucket agree; calls in different buckets never do.
func SocketName(namespace string, now time.Time) string {
	return fmt.Sprintf("%s.keepalive.%d", namespace, now.UnixMilli()/BucketSize.Milliseconds())
}

// Address maps a socket name onto a unix socket address. With an empty
// socketDir Linux uses the abstract namespace, other platforms fall back
// to the temp directory.
func Address(name, socketDir string) string {
	if socketDir != "" {
		return filepath.Join(socketDir, name+".sock")
	}
	if runtime.GOOS == "linux" {
		return "@" + name
	}
	return filepath.Join(os.TempDir(), name+".sock")
}

// Token identifies one supervision cycle. A daemon started with an older
// token than the current one is stale.
type Token int

// InitialToken is the token before the first completed cycle.
const InitialToken Token = -1

// Advance returns the token for the next cycle, larger by 1 to 10.
func (t Token) Advance(rng *rand.Rand) Token {
	return t + Token(rng.IntN(10)+1)
}
