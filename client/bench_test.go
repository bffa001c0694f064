package client

import (
	"context"
	"testing"

	"lb-rpc/registry"
	"lb-rpc/transport"
)

func setupProvider(b *testing.B, n int) *Client {
	b.Helper()
	urls := make([]string, 0, n)
	for i := 0; i < n; i++ {
		_, _, url := devNode(b, 100)
		urls = append(urls, url)
	}
	p, err := transport.NewProvider(transport.Config{Nodes: registry.Nodes(urls...)})
	if err != nil {
		b.Fatal(err)
	}
	p.CheckValidEndpoints(context.Background())
	return NewClient(p)
}

// BenchmarkSerialCall 串行调用：单 goroutine，三个节点轮询
func BenchmarkSerialCall(b *testing.B) {
	cli := setupProvider(b, 3)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cli.BlockNumber(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParallelCall 并发调用：多个 goroutine 共享同一个 Provider
func BenchmarkParallelCall(b *testing.B) {
	cli := setupProvider(b, 3)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := cli.BlockNumber(ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
