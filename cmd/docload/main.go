package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"xdao.co/docloader/cidutil"
	"xdao.co/docloader/dag"
	"xdao.co/docloader/internal/logging"
	"xdao.co/docloader/loader"
	"xdao.co/docloader/model"
	"xdao.co/docloader/storage"
	"xdao.co/docloader/storage/bundle"
	"xdao.co/docloader/storage/casconfig"
	"xdao.co/docloader/storage/casregistry"

	_ "xdao.co/docloader/storage/grpccas"
	_ "xdao.co/docloader/storage/ipfs"
	_ "xdao.co/docloader/storage/localfs"
	_ "xdao.co/docloader/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(ctx, args[1:], out, errOut)
	case "get":
		return cmdGet(ctx, args[1:], out, errOut)
	case "resolve":
		return cmdResolve(ctx, args[1:], out, errOut)
	case "export":
		return cmdExport(ctx, args[1:], out, errOut)
	case "import":
		return cmdImport(ctx, args[1:], out, errOut)
	case "cid":
		return cmdCID(args[1:], out, errOut)
	case "backends":
		printBackends(out)
		return 0
	case "schemes":
		for _, p := range loader.Schemes() {
			_, _ = fmt.Fprintln(out, p)
		}
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "docload: store and resolve linked-data documents by content address")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  docload put [common flags] [--codec raw|dag-json|dag-cbor|dag-pb] [--link name=cid ...] <file>")
	fmt.Fprintln(w, "  docload get [common flags] [--out <file>] <cid>")
	fmt.Fprintln(w, "  docload resolve [common flags] [--json] [--concurrency N] <uri> [<uri> ...]")
	fmt.Fprintln(w, "  docload export [common flags] [--recursive] [--index] [--out <file>] <cid> [<cid> ...]")
	fmt.Fprintln(w, "  docload import [common flags] [--ignore-unknown] <bundle.tar>")
	fmt.Fprintln(w, "  docload cid [--codec ...] [--link name=cid ...] <file>")
	fmt.Fprintln(w, "  docload backends")
	fmt.Fprintln(w, "  docload schemes")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --backend <name>       CAS backend (see 'docload backends'; default localfs)")
	fmt.Fprintln(w, "  --cas-config <file>    JSON/YAML multi-backend config (overrides --backend)")
	fmt.Fprintln(w, "  --log-level <level>    debug|info|warn|error|off (default warn)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - dag-json and dag-cbor inputs are read as dag-json text and re-encoded canonically")
	fmt.Fprintln(w, "  - dag-pb wraps the file as node data; --link adds named links for ipfs:// paths")
	fmt.Fprintln(w, "  - ipfs backend shells out to the local Kubo 'ipfs' CLI")
	fmt.Fprintln(w, "  - grpc backend talks to docload-casd (or any CAS gRPC server)")
}

type commonFlags struct {
	backend   string
	casConfig string
	logLevel  string
	logFormat string
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&c.casConfig, "cas-config", "", "CAS config file (JSON or YAML)")
	fs.StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error, off)")
	fs.StringVar(&c.logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (c *commonFlags) logger(errOut io.Writer) (*zap.Logger, error) {
	return logging.New(errOut, c.logLevel, c.logFormat)
}

func (c *commonFlags) openCAS(log *zap.Logger) (storage.CAS, func() error, error) {
	if c.casConfig == "" {
		return casregistry.Open(c.backend, casregistry.UsageCLI)
	}
	cfg, err := casconfig.LoadFile(c.casConfig)
	if err != nil {
		return nil, nil, err
	}
	cfg.Logger = log
	return cfg.Open(casregistry.UsageCLI, "")
}

// setup parses args, builds the logger and opens the CAS. On failure it
// reports to errOut and returns a non-zero exit code.
func (c *commonFlags) setup(fs *pflag.FlagSet, args []string, errOut io.Writer) (storage.CAS, func(), *zap.Logger, int) {
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, 2
	}
	log, err := c.logger(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return nil, nil, nil, 2
	}
	cas, closeFn, err := c.openCAS(log)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return nil, nil, nil, 1
	}
	cleanup := func() {
		if closeFn != nil {
			if err := closeFn(); err != nil {
				log.Warn("close CAS", zap.Error(err))
			}
		}
		_ = log.Sync()
	}
	return cas, cleanup, log, 0
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

type blockFlags struct {
	codec multicodec.Code
	links []string
}

func (b *blockFlags) add(fs *pflag.FlagSet) {
	b.codec = multicodec.Raw
	fs.Var(&codecValue{&b.codec}, "codec", "Block codec (raw, dag-json, dag-cbor, dag-pb)")
	fs.StringArrayVar(&b.links, "link", nil, "dag-pb link as name=cid (repeatable)")
}

// encode turns file contents into block bytes under the selected codec.
func (b *blockFlags) encode(data []byte) ([]byte, error) {
	if len(b.links) > 0 && b.codec != multicodec.DagPb {
		return nil, errors.New("--link requires --codec=dag-pb")
	}
	switch b.codec {
	case multicodec.Raw:
		return data, nil
	case multicodec.DagJson, multicodec.DagCbor:
		v, err := dag.UnmarshalJSON(data)
		if err != nil {
			return nil, err
		}
		return dag.Encode(b.codec, v)
	case multicodec.DagPb:
		node := dag.PBNode{Data: data}
		for _, l := range b.links {
			name, target, ok := strings.Cut(l, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("invalid --link %q (want name=cid)", l)
			}
			id, err := cid.Decode(target)
			if err != nil {
				return nil, fmt.Errorf("invalid --link %q: %w", l, err)
			}
			node.Links = append(node.Links, dag.PBLink{Name: name, Hash: id})
		}
		return dag.MarshalPB(node)
	default:
		return nil, fmt.Errorf("unsupported codec %s", b.codec)
	}
}

func (b *blockFlags) read(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(p), err)
	}
	return b.encode(data)
}

// codecValue adapts multicodec.Code to pflag.Value.
type codecValue struct{ code *multicodec.Code }

func (v *codecValue) String() string {
	if v.code == nil {
		return ""
	}
	return v.code.String()
}
func (v *codecValue) Type() string   { return "codec" }
func (v *codecValue) Set(s string) error {
	var c multicodec.Code
	if err := c.Set(s); err != nil {
		return err
	}
	if !dag.Supported(c) {
		return fmt.Errorf("codec %s not supported", c)
	}
	*v.code = c
	return nil
}

func cmdPut(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("put", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var block blockFlags
	block.add(fs)

	cas, cleanup, log, code := common.setup(fs, args, errOut)
	if code != 0 {
		return code
	}
	defer cleanup()
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: docload put [common flags] [--codec ...] <file>")
		return 2
	}

	data, err := block.read(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	id, err := cas.Put(ctx, block.codec, data)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	log.Info("stored block", zap.Stringer("cid", id), zap.Stringer("codec", block.codec), zap.Int("bytes", len(data)))
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var outPath string
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	cas, cleanup, _, code := common.setup(fs, args, errOut)
	if code != 0 {
		return code
	}
	defer cleanup()
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: docload get [common flags] [--out <file>] <cid>")
		return 2
	}

	id, err := cid.Decode(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid cid: %v\n", err)
		return 2
	}
	b, err := cas.Get(ctx, id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdResolve(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var asJSON bool
	var concurrency int
	fs.BoolVar(&asJSON, "json", false, "Print the full response envelope as JSON")
	fs.IntVar(&concurrency, "concurrency", 4, "Max concurrent resolutions")

	cas, cleanup, log, code := common.setup(fs, args, errOut)
	if code != 0 {
		return code
	}
	defer cleanup()
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: docload resolve [common flags] [--json] <uri> [<uri> ...]")
		return 2
	}

	load := loader.MakeDocumentResolver(storage.NewBlockStore(cas))
	resp := model.ResolveBatch(ctx, load, model.BatchRequest{URIs: fs.Args(), Concurrency: concurrency})

	failed := 0
	for _, r := range resp.Results {
		if r.OK() {
			log.Debug("resolved", zap.String("uri", r.URI), zap.String("scheme", r.Scheme))
			continue
		}
		failed++
		log.Info("resolve failed", zap.String("uri", r.URI), zap.String("code", string(r.Error.Code)))
		if !asJSON {
			fmt.Fprintf(errOut, "%s: %s\n", r.URI, r.Error.Error())
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	var err error
	switch {
	case asJSON:
		err = enc.Encode(resp)
	default:
		for _, r := range resp.Results {
			if r.OK() {
				if err = enc.Encode(r.Document); err != nil {
					break
				}
			}
		}
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func cmdCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("cid", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var block blockFlags
	block.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: docload cid [--codec ...] <file>")
		return 2
	}

	data, err := block.read(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	id, err := cidutil.CIDv1SHA256(block.codec, data)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdExport(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var opts bundle.ExportOptions
	var outPath string
	fs.BoolVar(&opts.Recursive, "recursive", true, "Include every block reachable from the roots")
	fs.BoolVar(&opts.IncludeIndex, "index", true, "Include index.json")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	cas, cleanup, log, code := common.setup(fs, args, errOut)
	if code != 0 {
		return code
	}
	defer cleanup()
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: docload export [common flags] <cid> [<cid> ...]")
		return 2
	}

	roots := make([]cid.Cid, 0, fs.NArg())
	for _, a := range fs.Args() {
		id, err := cid.Decode(a)
		if err != nil {
			fmt.Fprintf(errOut, "invalid cid %q: %v\n", a, err)
			return 2
		}
		roots = append(roots, id)
	}

	var buf bytes.Buffer
	if err := bundle.Export(ctx, &buf, cas, roots, opts); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	log.Info("exported bundle", zap.Int("roots", len(roots)), zap.Int("bytes", buf.Len()))
	if outPath == "" {
		_, _ = out.Write(buf.Bytes())
		return 0
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdImport(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var opts bundle.ImportOptions
	fs.BoolVar(&opts.IgnoreUnknown, "ignore-unknown", false, "Skip unknown archive entries")

	cas, cleanup, log, code := common.setup(fs, args, errOut)
	if code != 0 {
		return code
	}
	defer cleanup()
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: docload import [common flags] <bundle.tar>")
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()

	ids, err := bundle.Import(ctx, f, cas, opts)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	log.Info("imported bundle", zap.Int("blocks", len(ids)))
	for _, id := range ids {
		_, _ = fmt.Fprintln(out, id.String())
	}
	return 0
}
