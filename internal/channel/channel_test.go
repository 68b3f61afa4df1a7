package channel

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"monarch"
)

func TestUnix_RoundTrip(t *testing.T) {
	tr := Unix{Dir: t.TempDir()}
	id := monarch.MustParseIdentity("test.channel")

	ln, err := tr.Listen(id)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- "accept: " + err.Error()
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- string(data)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := tr.Dial(ctx, id)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := CloseWrite(conn); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	defer conn.Close()

	select {
	case got := <-received:
		if got != "hello" {
			t.Fatalf("received %q, want hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not observe EOF")
	}
}

func TestUnix_ListenReplacesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	tr := Unix{Dir: dir}
	id := monarch.MustParseIdentity("stale.socket")

	if err := os.WriteFile(tr.Path(id), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	ln, err := tr.Listen(id)
	if err != nil {
		t.Fatalf("Listen over stale file: %v", err)
	}
	ln.Close()

	if _, err := os.Stat(tr.Path(id)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket file still present after close: %v", err)
	}
}

func TestUnix_DialWithoutListenerFails(t *testing.T) {
	tr := Unix{Dir: t.TempDir()}
	_, err := tr.Dial(context.Background(), monarch.MustParseIdentity("nobody.home"))
	if err == nil {
		t.Fatal("Dial succeeded without a listener")
	}
}

func TestUnix_PathUsesFileStem(t *testing.T) {
	dir := t.TempDir()
	id := monarch.MustParseIdentity("a" + strings.Repeat("b", 240))
	got := Unix{Dir: dir}.Path(id)
	if filepath.Dir(got) != dir {
		t.Fatalf("Path() dir = %s, want %s", filepath.Dir(got), dir)
	}
	if len(filepath.Base(got)) > 80 {
		t.Fatalf("Path() base too long: %s", filepath.Base(got))
	}
}

func TestCloseWrite_FallsBackToClose(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	if err := CloseWrite(a); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	if _, err := a.Write([]byte("x")); err == nil {
		t.Fatal("write after CloseWrite fallback succeeded")
	}
}
