package vcrypto

import (
	"crypto/rand"
	"io"
	mathrand "math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// RandomBytes returns n cryptographically random bytes, preferring the OS
// secure RNG (crypto/rand, which itself talks to getrandom(2)/CSPRNG
// sources). If that fails — which in practice only happens in unusual
// sandboxes — it falls back to reading /dev/urandom directly, and only if
// that also fails does it fall back to a process-local PRNG seeded from
// wall-clock time XORed with the process id. Each fallback tier is used
// only when the tier above it failed.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err == nil {
		return b, nil
	}
	if err := readDevURandom(b); err == nil {
		return b, nil
	}
	fallbackRead(b)
	return b, nil
}

func readDevURandom(b []byte) error {
	fd, err := unix.Open("/dev/urandom", unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	read := 0
	for read < len(b) {
		n, err := unix.Read(fd, b[read:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return os.ErrClosed
		}
		read += n
	}
	return nil
}

var (
	fallbackOnce sync.Once
	fallbackRand *mathrand.Rand
	fallbackMu   sync.Mutex
)

// fallbackRead is the last-resort tier: a PRNG seeded once from wall-clock
// microseconds XOR the process id. This is not cryptographically strong
// and is only ever reached when both the OS CSPRNG and /dev/urandom are
// unavailable.
func fallbackRead(b []byte) {
	fallbackOnce.Do(func() {
		seed := time.Now().UnixMicro() ^ int64(os.Getpid())
		fallbackRand = mathrand.New(mathrand.NewSource(seed))
	})
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	_, _ = fallbackRand.Read(b)
}
