package server

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func startServer(t *testing.T, cfg *Config) {
	t.Helper()
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ready := make(chan struct{})
	go func() {
		for {
			conn, err := net.DialTimeout("tcp", net.JoinHostPort(cfg.Host, itoa(cfg.Port)), 10*time.Millisecond)
			if err == nil {
				conn.Close()
				close(ready)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	go func() {
		_ = srv.ListenAndServe(ctx)
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never started listening")
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func TestEndToEndPingSetGet(t *testing.T) {
	port := freePort(t)
	cfg := &Config{Host: "127.0.0.1", Port: port}
	startServer(t, cfg)

	client := goredis.NewClient(&goredis.Options{Addr: net.JoinHostPort("127.0.0.1", itoa(port))})
	defer client.Close()
	ctx := context.Background()

	require.Equal(t, "PONG", mustResult(t, client.Ping(ctx)))
	require.Equal(t, "OK", mustResult(t, client.Set(ctx, "foo", "bar", 0)))
	require.Equal(t, "bar", mustResult(t, client.Get(ctx, "foo")))
}

func TestEndToEndTTLExpiry(t *testing.T) {
	port := freePort(t)
	cfg := &Config{Host: "127.0.0.1", Port: port}
	startServer(t, cfg)

	client := goredis.NewClient(&goredis.Options{Addr: net.JoinHostPort("127.0.0.1", itoa(port))})
	defer client.Close()
	ctx := context.Background()

	require.Equal(t, "OK", mustResult(t, client.Set(ctx, "k", "v", 100*time.Millisecond)))
	time.Sleep(200 * time.Millisecond)

	_, err := client.Get(ctx, "k").Result()
	require.ErrorIs(t, err, goredis.Nil)
}

func TestEndToEndReplicationHandshakeAndFanout(t *testing.T) {
	primaryPort := freePort(t)
	startServer(t, &Config{Host: "127.0.0.1", Port: primaryPort})

	replicaPort := freePort(t)
	startServer(t, &Config{
		Host:      "127.0.0.1",
		Port:      replicaPort,
		ReplicaOf: "127.0.0.1 " + itoa(primaryPort),
	})

	// give the replica worker time to complete the handshake
	time.Sleep(200 * time.Millisecond)

	primaryClient := goredis.NewClient(&goredis.Options{Addr: net.JoinHostPort("127.0.0.1", itoa(primaryPort))})
	defer primaryClient.Close()
	ctx := context.Background()
	require.Equal(t, "OK", mustResult(t, primaryClient.Set(ctx, "x", "1", 0)))

	replicaClient := goredis.NewClient(&goredis.Options{Addr: net.JoinHostPort("127.0.0.1", itoa(replicaPort))})
	defer replicaClient.Close()

	require.Eventually(t, func() bool {
		v, err := replicaClient.Get(ctx, "x").Result()
		return err == nil && v == "1"
	}, 2*time.Second, 20*time.Millisecond)
}

func mustResult(t *testing.T, cmd interface {
	Result() (string, error)
}) string {
	t.Helper()
	v, err := cmd.Result()
	require.NoError(t, err)
	return v
}
