// Package bundle moves document graphs between stores as deterministic TAR
// archives of verified blocks.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"

	"xdao.co/docloader/cidutil"
	"xdao.co/docloader/dag"
	"xdao.co/docloader/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// ErrUnsupportedHash is returned for blocks whose CID does not use the
// bundle's multihash. Stores re-hash on Put, so such blocks could not be
// imported under the same CID.
var ErrUnsupportedHash = errors.New("bundle: only sha2-256 blocks can be bundled")

// indexMultihash names the only multihash a bundle carries.
const indexMultihash = "sha2-256"

func checkHash(id cid.Cid) error {
	if id.Prefix().MhType != multihash.SHA2_256 {
		return fmt.Errorf("%w: %s", ErrUnsupportedHash, id)
	}
	return nil
}

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Recursive follows links out of dag-pb, dag-cbor and dag-json blocks
	// and exports everything reachable from the roots.
	Recursive bool
	// Labels is optional, non-authoritative metadata mapping names to CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a deterministic TAR bundle containing the blocks for roots
// (and, with Recursive, every block they link to).
//
// Entry order is lexicographic by CID and TAR headers are normalized.
// Every exported block is verified against its CID. Blocks addressed by a
// multihash other than sha2-256 are ErrUnsupportedHash.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, roots []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}

	blocks, err := collect(ctx, cas, roots, opts.Recursive)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tar.NewWriter(w)
	index := make([]indexBlock, 0, len(keys))
	for _, k := range keys {
		b := blocks[k]
		if err := writeFile(tw, "blocks/"+k, b.data); err != nil {
			_ = tw.Close()
			return err
		}
		index = append(index, indexBlock{CID: k, Codec: multicodec.Code(b.id.Type()).String(), Size: len(b.data)})
	}

	if opts.IncludeIndex {
		idx := indexJSON{Version: FormatVersion, Multihash: indexMultihash, Blocks: index}
		for _, r := range roots {
			idx.Roots = append(idx.Roots, r.String())
		}
		labels, err := sortedLabels(opts.Labels)
		if err != nil {
			_ = tw.Close()
			return err
		}
		idx.Labels = labels

		b, err := json.Marshal(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

type block struct {
	id   cid.Cid
	data []byte
}

// collect fetches and verifies the roots and, when recursive, their
// closure. Blocks are keyed by CID string.
func collect(ctx context.Context, cas storage.CAS, roots []cid.Cid, recursive bool) (map[string]block, error) {
	out := make(map[string]block, len(roots))
	queue := append([]cid.Cid(nil), roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if !id.Defined() {
			return nil, storage.ErrInvalidCID
		}
		if _, ok := out[id.String()]; ok {
			continue
		}
		if err := checkHash(id); err != nil {
			return nil, err
		}
		b, err := cas.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("bundle: get %s: %w", id, err)
		}
		if err := cidutil.Verify(id, b); err != nil {
			return nil, storage.ErrCIDMismatch
		}
		out[id.String()] = block{id: id, data: b}

		if !recursive {
			continue
		}
		code := multicodec.Code(id.Type())
		if !dag.Supported(code) {
			continue
		}
		links, err := dag.Links(code, b)
		if err != nil {
			return nil, fmt.Errorf("bundle: links of %s: %w", id, err)
		}
		queue = append(queue, links...)
	}
	return out, nil
}

func sortedLabels(labels map[string]cid.Cid) ([]indexLabel, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]indexLabel, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, errors.New("bundle: empty label key")
		}
		v := labels[k]
		if !v.Defined() {
			return nil, storage.ErrInvalidCID
		}
		out = append(out, indexLabel{Name: k, CID: v.String()})
	}
	return out, nil
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
}

// Import reads a bundle from r, stores every block in cas and returns the
// imported CIDs in archive order.
//
// Each block must hash to the CID in its entry name, and that CID must use
// sha2-256. Blocks are stored under the codec that CID names.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) ([]cid.Cid, error) {
	if cas == nil {
		return nil, errors.New("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var imported []cid.Cid

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if err != nil || !id.Defined() {
			return imported, storage.ErrInvalidCID
		}
		if _, ok := seen[id.String()]; ok {
			return imported, fmt.Errorf("bundle: duplicate block entry: %s", id)
		}
		seen[id.String()] = struct{}{}
		if err := checkHash(id); err != nil {
			return imported, err
		}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return imported, err
		}
		if err := cidutil.Verify(id, payload); err != nil {
			return imported, storage.ErrCIDMismatch
		}

		putID, err := cas.Put(ctx, multicodec.Code(id.Type()), payload)
		if err != nil {
			return imported, err
		}
		if !bytes.Equal(putID.Hash(), id.Hash()) {
			return imported, storage.ErrCIDMismatch
		}
		imported = append(imported, id)
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	Multihash string       `json:"multihash"`
	Roots     []string     `json:"roots,omitempty"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID   string `json:"cid"`
	Codec string `json:"codec"`
	Size  int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
