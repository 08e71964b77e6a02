package socket

import "fmt"

// ID identifies one Socket instance within a process, useful for
// disambiguating log lines from multiple Sockets sharing a process.
type ID [8]byte

// String renders the ID as hex.
func (id ID) String() string {
	return fmt.Sprintf("%x", [8]byte(id))
}
