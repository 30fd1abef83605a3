package listener

import (
	"fmt"
	"net"
	"os"
)

// listenerFromFD reconstructs a net.Listener around an inherited file
// descriptor without rebinding. The returned listener owns a dup of fd;
// the original (inherited) fd is closed once net.FileListener has taken
// its own copy, so fd ownership stays unambiguous.
func listenerFromFD(fd uintptr, name string) (net.Listener, error) {
	file := os.NewFile(fd, name)
	if file == nil {
		return nil, fmt.Errorf("invalid file descriptor %d", fd)
	}
	ln, err := net.FileListener(file)
	file.Close()
	if err != nil {
		return nil, err
	}
	return ln, nil
}
