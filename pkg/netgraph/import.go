package netgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Cell types with fixed meaning in the interchange format.
const (
	GroundRef = "GND"
	SupplyRef = "VCC"
)

var defaultBoundaryRefs = []string{"IBUF", "OBUF"}

// ImportOptions controls how a design record is turned into a graph.
type ImportOptions struct {
	// BoundaryRefs lists primitive types colored as boundary I/O.
	// Defaults to IBUF and OBUF.
	BoundaryRefs []string
	// Consts names the ground and supply cell types. Empty fields fall
	// back to GND and VCC.
	Consts ConstRefs
	// Flat reads nets recorded from a flattened netlist: the driver is the
	// single LEAF.0 output and every LEAF.0 input becomes a primitive edge.
	Flat   bool
	Logger *slog.Logger
}

type rawCell struct {
	IsPrimitive    flexBool `json:"IS_PRIMITIVE"`
	RefName        string   `json:"REF_NAME"`
	OrigRefName    string   `json:"ORIG_REF_NAME"`
	Parent         string   `json:"PARENT"`
	BelProperties  propMap  `json:"BEL_PROPERTIES"`
	CellProperties propMap  `json:"CELL_PROPERTIES"`
	CellName       string   `json:"CELL_NAME"`
}

type rawLeaf struct {
	Inputs  []string `json:"INPUTS"`
	Outputs []string `json:"OUTPUTS"`
}

func (l rawLeaf) contains(pin string) bool {
	for _, p := range l.Inputs {
		if p == pin {
			return true
		}
	}
	for _, p := range l.Outputs {
		if p == pin {
			return true
		}
	}
	return false
}

type rawNet struct {
	Parent string  `json:"PARENT"`
	Driver string  `json:"DRIVER"`
	Leaf0  rawLeaf `json:"LEAF.0"`
	Leaf1  rawLeaf `json:"LEAF.1"`
}

type namedCell struct {
	name string
	cell rawCell
}

type namedNet struct {
	name string
	net  rawNet
}

// ImportFile reads a design record from disk.
func ImportFile(path string, opts ImportOptions) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("netgraph: open %s: %w", path, err)
	}
	defer f.Close()
	g, err := Import(f, opts)
	if err != nil {
		return nil, fmt.Errorf("netgraph: %s: %w", path, err)
	}
	return g, nil
}

// Import builds a graph from a design record. Vertex ids follow the order
// in which cells appear in the document, so the first cell becomes the
// root. Net endpoints naming unknown cells are dropped with a warning.
func Import(r io.Reader, opts ImportOptions) (*Graph, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	boundary := opts.BoundaryRefs
	if boundary == nil {
		boundary = defaultBoundaryRefs
	}

	cells, nets, err := decodeDesign(r)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("design has no cells")
	}

	g := New()
	index := make(map[string]int, len(cells))
	for _, c := range cells {
		ref := c.cell.OrigRefName
		if ref == "" {
			ref = c.cell.RefName
		}
		v := Vertex{
			Name:     c.name,
			Ref:      ref,
			Parent:   c.cell.Parent,
			CellName: c.cell.CellName,
		}
		if c.cell.IsPrimitive {
			v.Kind = Primitive
			v.Color = ColorPrimitive
			v.Props = map[string]string(c.cell.BelProperties)
			if contains(boundary, ref) {
				v.Color = ColorBoundary
			}
		} else {
			v.Kind = Hierarchical
			v.Color = ColorHierarchical
			v.Props = map[string]string(c.cell.CellProperties)
		}
		if v.Props == nil {
			v.Props = map[string]string{}
		}
		index[c.name] = g.AddVertex(v)
	}

	var dropped int
	if opts.Flat {
		dropped = addFlatEdges(g, index, nets, logger)
		consts := opts.Consts.orDefault()
		g.LabelConstSources(consts.Ground, consts.Supply)
	} else {
		dropped = addHierEdges(g, index, nets, opts.Consts.orDefault(), logger)
	}
	if dropped > 0 {
		logger.Warn("dropped net endpoints referencing unknown cells", "count", dropped)
	}
	return g, nil
}

// addHierEdges connects every pin of a net to its DRIVER. Edges between
// leaf-level pins take the driver's signal; the rest are ports.
func addHierEdges(g *Graph, index map[string]int, nets []namedNet, consts ConstRefs, logger *slog.Logger) int {
	dropped := 0
	for _, n := range nets {
		driver := n.net.Driver
		if driver == "" {
			continue
		}
		srcCell, outPin := SplitPin(driver)
		src, okSrc := index[srcCell]
		driverSignal := SignalPrimitive
		if okSrc {
			driverSignal = consts.signal(g.Vertex(src).Ref)
		}
		driverLeaf := n.net.Leaf1.contains(driver)

		for level, leaf := range []rawLeaf{n.net.Leaf0, n.net.Leaf1} {
			for _, pin := range append(append([]string(nil), leaf.Inputs...), leaf.Outputs...) {
				if pin == driver {
					continue
				}
				signal := SignalPort
				if level == 1 && driverLeaf {
					signal = driverSignal
				}
				dstCell, inPin := SplitPin(pin)
				dst, okDst := index[dstCell]
				if !okSrc || !okDst {
					dropped++
					logger.Debug("dropping net endpoint", "net", n.name, "driver", driver, "pin", pin)
					continue
				}
				g.AddEdge(Edge{
					Source: src,
					Target: dst,
					Net:    n.name,
					Parent: n.net.Parent,
					InPin:  inPin,
					OutPin: outPin,
					Signal: signal,
				})
			}
		}
	}
	return dropped
}

// addFlatEdges connects the single LEAF.0 output of every net to its
// LEAF.0 inputs. Nets without exactly one output are skipped.
func addFlatEdges(g *Graph, index map[string]int, nets []namedNet, logger *slog.Logger) int {
	dropped, skipped := 0, 0
	for _, n := range nets {
		if len(n.net.Leaf0.Outputs) != 1 {
			skipped++
			continue
		}
		driver := n.net.Leaf0.Outputs[0]
		srcCell, outPin := SplitPin(driver)
		src, okSrc := index[srcCell]
		for _, pin := range n.net.Leaf0.Inputs {
			if pin == driver {
				continue
			}
			dstCell, inPin := SplitPin(pin)
			dst, okDst := index[dstCell]
			if !okSrc || !okDst {
				dropped++
				logger.Debug("dropping net endpoint", "net", n.name, "driver", driver, "pin", pin)
				continue
			}
			g.AddEdge(Edge{
				Source: src,
				Target: dst,
				Net:    n.name,
				Parent: n.net.Parent,
				InPin:  inPin,
				OutPin: outPin,
				Signal: SignalPrimitive,
			})
		}
	}
	if skipped > 0 {
		logger.Debug("skipped nets without a single driver", "count", skipped)
	}
	return dropped
}

// decodeDesign walks the top-level object token by token so that cells
// keep their document order.
func decodeDesign(r io.Reader) ([]namedCell, []namedNet, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, nil, err
	}
	var cells []namedCell
	var nets []namedNet
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, nil, err
		}
		switch key {
		case "CELLS":
			err = decodeObject(dec, func(name string) error {
				var c rawCell
				if err := dec.Decode(&c); err != nil {
					return fmt.Errorf("cell %s: %w", name, err)
				}
				cells = append(cells, namedCell{name: name, cell: c})
				return nil
			})
		case "NETS":
			err = decodeObject(dec, func(name string) error {
				var n rawNet
				if err := dec.Decode(&n); err != nil {
					return fmt.Errorf("net %s: %w", name, err)
				}
				nets = append(nets, namedNet{name: name, net: n})
				return nil
			})
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, nil, err
	}
	return cells, nets, nil
}

func decodeObject(dec *json.Decoder, each func(key string) error) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return err
		}
		if err := each(key); err != nil {
			return err
		}
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode design: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("decode design: expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("decode design: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("decode design: expected key, got %v", tok)
	}
	return key, nil
}

// flexBool accepts JSON booleans, numbers and their string spellings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*b = true
	case "false", "0", "", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// propMap normalizes property values of any scalar type to strings.
type propMap map[string]string

func (p *propMap) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(propMap, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = strings.TrimSpace(string(v))
	}
	*p = out
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
