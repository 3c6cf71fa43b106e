package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/NicolasHaas/linechat/pkg/version"
)

// A minimal line client: everything the server sends goes to stdout,
// every line typed on stdin goes to the server. All chat semantics live
// server-side, so this stays a dumb pipe.
func main() {
	addr := flag.String("addr", "localhost:12345", "Server address to connect to")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("linechat client", version.Full())
		return
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := io.Copy(os.Stdout, conn); err != nil {
			fmt.Fprintf(os.Stderr, "connection error: %v\n", err)
		}
	}()

	go func() {
		in := bufio.NewScanner(os.Stdin)
		w := bufio.NewWriter(conn)
		for in.Scan() {
			if _, err := w.WriteString(in.Text() + "\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
		// stdin closed: half-close so the server sees a clean EOF.
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
	}()

	<-done
	fmt.Println("disconnected.")
}
