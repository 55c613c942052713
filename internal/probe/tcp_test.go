package probe

import (
	"context"
	"net"
	"testing"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

func TestTCPChecker_Success(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	result := NewTCPChecker().Check(context.Background(), types.ServiceTarget{
		Name:    "tcp-svc",
		Kind:    types.KindTCP,
		Address: ln.Addr().String(),
	})

	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}
}

func TestTCPChecker_Refused(t *testing.T) {
	// Grab a free port, then close the listener so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	result := NewTCPChecker().Check(context.Background(), types.ServiceTarget{
		Name:    "tcp-svc",
		Kind:    types.KindTCP,
		Address: addr,
	})

	if result.Success {
		t.Fatal("expected failure against closed port")
	}
	if result.Failure != types.FailureConnectionRefused {
		t.Fatalf("failure = %q, want %q", result.Failure, types.FailureConnectionRefused)
	}
	if result.Error == "" {
		t.Fatal("expected error string")
	}
}
