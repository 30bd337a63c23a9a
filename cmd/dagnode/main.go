// Command dagnode is a content-addressed block node: it stores blocks, walks
// DAGs across codecs, pins roots, removes unpinned blocks and serves its block
// store over gRPC.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"xdao.co/dagnode/logging"
	"xdao.co/dagnode/model"
	"xdao.co/dagnode/node"
	"xdao.co/dagnode/storage/registry"

	_ "xdao.co/dagnode/storage/badgerds"
	_ "xdao.co/dagnode/storage/dsstore"
	_ "xdao.co/dagnode/storage/grpcstore"
	_ "xdao.co/dagnode/storage/ipfs"
	_ "xdao.co/dagnode/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env carries the global flags and streams shared by every subcommand.
type env struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	flags  *pflag.FlagSet

	backend     string
	configFile  string
	prefer      string
	repo        string
	pinDir      string
	logLevel    string
	cacheBlocks int
	parallelism int
	jsonOut     bool
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	e := &env{in: in, out: out, errOut: errOut}
	root := e.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		e.fail(err)
		return 1
	}
	return 0
}

func (e *env) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dagnode",
		Short:         "Content-addressed block node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&e.backend, "backend", "badger", "block store backend (see 'dagnode backends')")
	pf.StringVar(&e.configFile, "store-config", "", "JSON store config; overrides --backend")
	pf.StringVar(&e.prefer, "prefer", "", "backend name or id from --store-config that receives writes")
	pf.StringVar(&e.repo, "repo", defaultRepo(), "node directory for default backend and pin locations")
	pf.StringVar(&e.pinDir, "pin-dir", "", "badger directory for pins when the backend keeps no datastore")
	pf.StringVar(&e.logLevel, "log-level", logging.LevelWarn, "debug, info, warn, error or none")
	pf.IntVar(&e.cacheBlocks, "cache-blocks", 0, "LRU block cache size (0 disables)")
	pf.IntVar(&e.parallelism, "parallelism", 0, "concurrent block fetches during traversal")
	pf.BoolVar(&e.jsonOut, "json", false, "write JSON output")
	registry.RegisterFlags(pf, registry.UsageAll)
	e.flags = pf

	root.AddCommand(
		e.blockCmd(),
		e.dagCmd(),
		e.lsCmd(),
		e.pinCmd(),
		e.objectCmd(),
		e.cidCmd(),
		e.serveCmd(),
		e.backendsCmd(),
	)
	return root
}

func defaultRepo() string {
	if p := os.Getenv("DAGNODE_PATH"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dagnode"
	}
	return filepath.Join(home, ".dagnode")
}

// repoDirs places on-disk backends under --repo unless their own flag is set.
var repoDirs = map[string]struct{ key, sub string }{
	"badger":  {"badger-dir", "badger"},
	"localfs": {"localfs-dir", "blocks"},
}

var sharedPins = map[string]struct{}{"badger": {}, "memory": {}}

func (e *env) logger() (*zap.Logger, error) {
	return logging.GetLogger(e.logLevel)
}

func (e *env) nodeConfig(usage registry.Usage, l *zap.Logger) node.Config {
	cfg := node.Config{
		Backend:     e.backend,
		Usage:       usage,
		ConfigFile:  e.configFile,
		Preferred:   e.prefer,
		CacheBlocks: e.cacheBlocks,
		PinDir:      e.pinDir,
		Parallelism: e.parallelism,
		Logger:      l,
	}
	if d, ok := repoDirs[e.backend]; ok && e.configFile == "" && !e.flags.Changed(d.key) {
		cfg.BackendConfig = map[string]string{d.key: filepath.Join(e.repo, d.sub)}
	}
	// Only the datastore backends can hold pins next to the blocks.
	if _, shared := sharedPins[e.backend]; cfg.PinDir == "" && (e.configFile != "" || !shared) {
		cfg.PinDir = filepath.Join(e.repo, "pins")
	}
	return cfg
}

func (e *env) open(usage registry.Usage) (*node.Node, error) {
	l, err := e.logger()
	if err != nil {
		return nil, err
	}
	return node.Open(e.nodeConfig(usage, l))
}

// withNode opens the node for one command and closes it afterwards.
func (e *env) withNode(usage registry.Usage, fn func(cmd *cobra.Command, n *node.Node, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		n, err := e.open(usage)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := n.Close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, n, args)
	}
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *env) fail(err error) {
	coded := model.Wrap(err)
	if e.jsonOut {
		enc := json.NewEncoder(e.errOut)
		_ = enc.Encode(model.ErrorResponse{Error: coded})
		return
	}
	fmt.Fprintf(e.errOut, "Error: %s\n", err)
}

func (e *env) backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List linked block store backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range registry.List(registry.UsageAll) {
				if b.Description == "" {
					fmt.Fprintln(e.out, b.Name)
					continue
				}
				fmt.Fprintf(e.out, "%s\t%s\n", b.Name, b.Description)
			}
			return nil
		},
	}
}
