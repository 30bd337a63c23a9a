package grpcstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "grpc",
		Description: "gRPC block store client (talks to `dagnode serve`)",
		Usage:       registry.UsageCLI,
		Options: []registry.Option{
			{Key: "grpc-target", Help: "gRPC target host:port"},
			{Key: "grpc-timeout", Default: "0s", Help: "Per-RPC timeout"},
			{Key: "grpc-max-msg-bytes", Default: "0", Help: "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults"},
		},
		Open: func(cfg map[string]string) (storage.Blockstore, func() error, error) {
			target := strings.TrimSpace(cfg["grpc-target"])
			if target == "" {
				return nil, nil, fmt.Errorf("missing --grpc-target")
			}
			timeout, err := time.ParseDuration(cfg["grpc-timeout"])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --grpc-timeout: %w", err)
			}
			maxMsg, err := strconv.Atoi(cfg["grpc-max-msg-bytes"])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --grpc-max-msg-bytes: %w", err)
			}
			client, err := Dial(target, DialOptions{MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}
