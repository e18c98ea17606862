// boxingplan prints the boxing sub-graph planned for a blob, given its placement and distribution on the
// producer and consumer sides.
//
// Usage:
//
//	boxingplan -request=request.yaml [-config=boxing.yaml] [-stablehlo] [-run]
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/boxing"
	"github.com/gomlx/boxing/collective"
	"github.com/gomlx/boxing/hostexec"
	"github.com/gomlx/boxing/kernels"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagConfig    = flag.String("config", "", "YAML file with the boxing configuration. Defaults are used if empty.")
	flagRequest   = flag.String("request", "", "YAML file with the boxing request.")
	flagStableHLO = flag.Bool("stablehlo", false, "Print the collective operations in StableHLO form.")
	flagRun       = flag.Bool("run", false, "Execute the plan on the host, with the blob holding 0, 1, 2..., and check the outputs.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagRequest == "" {
		klog.Fatal("Missing -request flag")
	}
	cfg := boxing.Config{}
	if *flagConfig != "" {
		cfg = must.M1(boxing.LoadConfig(*flagConfig))
	}
	req := must.M1(loadRequest(*flagRequest))
	g := taskgraph.New(req.Lbi.String())
	boxingReq, subGraph, err := plan(os.Stdout, g, req, cfg, *flagStableHLO)
	must.M(err)
	if *flagRun {
		must.M(run(os.Stdout, g, boxingReq, subGraph))
	}
}

// plan builds the boxing of req into g, and prints it to w.
func plan(w io.Writer, g *taskgraph.Graph, req *planRequest, cfg boxing.Config, stableHLO bool) (
	*boxing.Request, *boxing.SubGraph, error) {
	builder, err := boxing.NewHierarchicalBuilder(cfg)
	if err != nil {
		return nil, nil, err
	}
	boxingReq, err := req.build(g)
	if err != nil {
		return nil, nil, err
	}
	numSources := g.NumNodes()
	subGraph, err := builder.Build(g, boxingReq)
	if err != nil {
		return nil, nil, err
	}

	_, _ = fmt.Fprintf(w, "Boxing %s: %s%v -> %s%v\n", req.Lbi, boxingReq.InDist, boxingReq.InDesc.Hierarchy(),
		boxingReq.OutDist, boxingReq.OutDesc.Hierarchy())
	_, _ = fmt.Fprintf(w, "Strategy: %s\n", subGraph.Status)
	if err := g.Write(w); err != nil {
		return nil, nil, err
	}

	_, _ = fmt.Fprintf(w, "\nCreated nodes:\n")
	var total uint64
	for _, node := range g.Nodes()[numSources:] {
		memory := uint64(node.Shape.Memory())
		total += memory
		_, _ = fmt.Fprintf(w, "  %-28s %-16s %10s\n", node.Name, node.Device, humanize.Bytes(memory))
	}
	_, _ = fmt.Fprintf(w, "  %d nodes, %s\n", g.NumNodes()-numSources, humanize.Bytes(total))

	if stableHLO {
		_, _ = fmt.Fprintf(w, "\nCollectives:\n")
		for _, node := range subGraph.OutNodes {
			if collectiveReq, ok := taskgraph.Attribute[*collective.Request](node, boxing.AttrCollective); ok {
				_, _ = fmt.Fprintf(w, "  %s: %s\n", node.Device, collectiveReq.ToStableHLO())
			}
		}
	}
	return boxingReq, subGraph, nil
}

// run executes the graph on the host, with the logical blob holding 0, 1, 2..., and checks every output holds
// its region of it. With partial-sum on either side the outputs are only computed.
func run(w io.Writer, g *taskgraph.Graph, req *boxing.Request, subGraph *boxing.SubGraph) error {
	p, err := hostexec.Compile(g)
	if err != nil {
		return err
	}
	logicalShape := req.BlobDesc.Shape
	logical, err := kernels.Iota(logicalShape)
	if err != nil {
		return err
	}
	inputs, err := hostexec.SourceInputs(g, logical)
	if err != nil {
		return err
	}
	outputs, err := p.Run(context.Background(), inputs)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "\nExecuted %d tasks on the host.\n", len(p.Tasks()))
	if hasPartialSum(req.InDist) || hasPartialSum(req.OutDist) {
		return nil
	}
	full := shapes.FullView(logicalShape)
	for id, node := range subGraph.OutNodes {
		view := boxing.DistributionView(logicalShape, req.OutDesc, req.OutDist, id)
		want, err := kernels.Region(logical, full, view)
		if err != nil {
			return err
		}
		if !bytes.Equal(want.Data, outputs[node.ID].Data) {
			return errors.Errorf("output of %s at out parallel id %d doesn't hold %s", node, id, view)
		}
	}
	_, _ = fmt.Fprintf(w, "Checked %d outputs.\n", len(subGraph.OutNodes))
	return nil
}

func hasPartialSum(dist sbp.ParallelDistribution) bool {
	for _, s := range dist {
		if s.IsPartialSum() {
			return true
		}
	}
	return false
}
