package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenID generates a unique id of the form "<prefix>-<unix_nano>-<seq>".
func GenID(prefix string) string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, n, s)
}
