package main

import (
	"net"
	"testing"
)

func TestListenAddrBinds(t *testing.T) {
	addr := listenAddr("0")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listen on %q failed: %v", addr, err)
	}
	_ = ln.Close()

	if _, err := net.Listen("tcp", "8080"); err == nil {
		t.Fatal("bare port accepted as listen address, want error")
	}
}
