// Package ftptest runs minimal FTP servers on the loopback interface for tests.
package ftptest

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
)

// RejectingServer starts a server which greets clients normally and then answers every USER
// command with the given reply, e.g. "530 Login incorrect.". It returns the server's address.
func RejectingServer(t testing.TB, reply string) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		_ = listener.Close()
	})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveRejecting(conn, reply)
		}
	}()
	return listener.Addr().String()
}

func serveRejecting(conn net.Conn, reply string) {
	defer func() {
		_ = conn.Close()
	}()
	if _, err := io.WriteString(conn, "220 Service ready.\r\n"); err != nil {
		return
	}
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		command, _, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch strings.ToUpper(command) {
		case "USER":
			_, err = io.WriteString(conn, reply+"\r\n")
		case "QUIT":
			_, _ = io.WriteString(conn, "221 Goodbye.\r\n")
			return
		default:
			_, err = io.WriteString(conn, "502 Command not implemented.\r\n")
		}
		if err != nil {
			return
		}
	}
}
