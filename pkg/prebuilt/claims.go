package prebuilt

import (
	"time"

	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/sequencer"
)

// Registered names of the claim pipelines.
const (
	Classic   = "classic"
	FileInput = "file-input"
	Layered   = "layered"
)

// Node IDs shared by the claim pipelines.
const (
	NodeFileInput            = "file_input"
	NodeInput                = "input"
	NodeDischargeSummary     = "discharge_summary_agent"
	NodeClaimForm            = "claim_form_agent"
	NodePharmacyBills        = "pharmacy_bills_agent"
	NodeIDs                  = "ids_agent"
	NodeChequeOrBank         = "cheque_or_bank_details_agent"
	NodeItemsCategorise      = "items_categorisation_agent"
	NodeDuplicateDetect      = "duplicate_detection_agent"
	NodePatientSummary       = "patient_summary_agent"
	NodeNMEAnalysis          = "nme_analysis_agent"
	NodeCompletionAggregator = "completion_aggregator"
)

// claimEdges is the schedule order of the classic page.
var claimEdges = [][2]string{
	{NodeInput, NodeDischargeSummary},
	{NodeInput, NodePharmacyBills},
	{NodeInput, NodeClaimForm},
	{NodeInput, NodeIDs},
	{NodeInput, NodeChequeOrBank},
	{NodePharmacyBills, NodeItemsCategorise},
	{NodePharmacyBills, NodeDuplicateDetect},
	{NodeItemsCategorise, NodeNMEAnalysis},
	{NodeDuplicateDetect, NodeNMEAnalysis},
	{NodeNMEAnalysis, NodeCompletionAggregator},
	{NodeDischargeSummary, NodePatientSummary},
	{NodeClaimForm, NodePatientSummary},
	{NodeChequeOrBank, NodePatientSummary},
	{NodeIDs, NodePatientSummary},
	{NodePatientSummary, NodeCompletionAggregator},
}

// claimNodes lists the agents top to bottom within each column. The patient
// summary is pinned next to the NME analysis so both feed the aggregator
// from the same column.
func claimNodes(firstColumn int) []*graph.Node {
	col := func(c int) int { return firstColumn + c }
	return []*graph.Node{
		graph.NewNode(NodeInput, "Input Segregation", graph.CategoryInput).InColumn(col(0)),
		graph.NewNode(NodeDischargeSummary, "Discharge Summary Extractor", graph.CategoryExtractor).InColumn(col(1)),
		graph.NewNode(NodeClaimForm, "Claim Form Extractor", graph.CategoryExtractor).InColumn(col(1)),
		graph.NewNode(NodePharmacyBills, "Pharmacy Bills Extractor", graph.CategoryExtractor).InColumn(col(1)),
		graph.NewNode(NodeIDs, "Identity Document Extractor", graph.CategoryExtractor).InColumn(col(1)),
		graph.NewNode(NodeChequeOrBank, "Cheque/Bank Extractor", graph.CategoryExtractor).InColumn(col(1)),
		graph.NewNode(NodeItemsCategorise, "Items Categorisation", graph.CategoryUtility).InColumn(col(2)),
		graph.NewNode(NodeDuplicateDetect, "Duplicate Detection", graph.CategoryUtility).InColumn(col(2)),
		graph.NewNode(NodePatientSummary, "Patient Summary", graph.CategoryAggregate).InColumn(col(3)),
		graph.NewNode(NodeNMEAnalysis, "NME Analysis", graph.CategoryAnalysis).InColumn(col(3)),
		graph.NewNode(NodeCompletionAggregator, "Completion Aggregator", graph.CategoryTerminal).InColumn(col(4)),
	}
}

func assemble(g *graph.Graph, nodes []*graph.Node, edges [][2]string) error {
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return err
		}
	}
	for _, e := range edges {
		if err := g.Connect(e[0], e[1]); err != nil {
			return err
		}
	}
	if err := g.Validate(); err != nil {
		return err
	}
	return g.ValidateTopology()
}

// ClaimPipeline is the classic claim pipeline: input segregation fans out to
// five extractors which converge, through utility and analysis agents and
// the patient summary, on the completion aggregator.
func ClaimPipeline() (*Pipeline, error) {
	g := graph.New("claim-pipeline", "Claim Processing Pipeline")
	g.Start = []string{NodeInput}
	g.Terminal = NodeCompletionAggregator
	if err := assemble(g, claimNodes(0), claimEdges); err != nil {
		return nil, err
	}
	return &Pipeline{
		Graph:  g,
		Timing: ClassicTiming(),
		Offsets: map[string]float64{
			NodeItemsCategorise: -0.2,
			NodeDuplicateDetect: 0.2,
		},
		Result: NewClaimResult(time.Now()),
	}, nil
}

// ClaimPipelineWithFileInput prefixes the classic pipeline with a file picker
// stage. Runs of this pipeline are only started once a file was selected.
func ClaimPipelineWithFileInput() (*Pipeline, error) {
	g := graph.New("claim-pipeline-file-input", "Claim Processing Pipeline (file input)")
	g.Start = []string{NodeFileInput}
	g.Terminal = NodeCompletionAggregator
	nodes := append([]*graph.Node{
		graph.NewNode(NodeFileInput, "File Input", graph.CategoryFileInput).InColumn(0),
	}, claimNodes(1)...)
	edges := append([][2]string{{NodeFileInput, NodeInput}}, claimEdges...)
	if err := assemble(g, nodes, edges); err != nil {
		return nil, err
	}
	return &Pipeline{
		Graph:  g,
		Timing: FileInputTiming(),
		Offsets: map[string]float64{
			NodeItemsCategorise: -0.2,
			NodeDuplicateDetect: 0.2,
		},
		Result: NewClaimResult(time.Now()),
	}, nil
}

// layeredColumns gives every analysis stage its own wave after the
// extractors: categorisation and duplicate detection, then NME analysis,
// then the patient summary, then the aggregator.
var layeredColumns = map[string]int{
	NodeItemsCategorise:      3,
	NodeDuplicateDetect:      3,
	NodeNMEAnalysis:          4,
	NodePatientSummary:       5,
	NodeCompletionAggregator: 6,
}

// ClaimPipelineLayered runs the file-input pipeline as a sequence of
// stages. All agents of a stage process together and the next stage only
// starts once they have finished.
func ClaimPipelineLayered() (*Pipeline, error) {
	g := graph.New("claim-pipeline-layered", "Claim Processing Pipeline (layered)")
	g.Start = []string{NodeFileInput}
	g.Terminal = NodeCompletionAggregator
	nodes := append([]*graph.Node{
		graph.NewNode(NodeFileInput, "File Input", graph.CategoryFileInput).InColumn(0),
	}, claimNodes(1)...)
	for _, n := range nodes {
		if c, ok := layeredColumns[n.ID]; ok {
			n.InColumn(c)
		}
	}
	edges := append([][2]string{{NodeFileInput, NodeInput}}, claimEdges...)
	if err := assemble(g, nodes, edges); err != nil {
		return nil, err
	}
	return &Pipeline{
		Graph:  g,
		Timing: LayeredTiming(),
		Offsets: map[string]float64{
			NodeItemsCategorise: -0.2,
			NodeDuplicateDetect: 0.2,
		},
		Result: NewClaimResult(time.Now()),
	}, nil
}

// ClassicTiming is the pacing of the classic page.
func ClassicTiming() sequencer.Timing {
	return sequencer.DefaultTiming()
}

// FileInputTiming starts later and staggers transfers more tightly.
func FileInputTiming() sequencer.Timing {
	t := sequencer.DefaultTiming()
	t.InitialOffset = time.Second
	t.StaggerMin = 400 * time.Millisecond
	t.StaggerMax = 800 * time.Millisecond
	t.SettleDelay = 800 * time.Millisecond
	return t
}

// LayeredTiming paces one stage every 3.7s: a 500ms lead-in, 2.5s of
// processing and a 700ms pause. The first stage starts 500ms after the
// file is picked.
func LayeredTiming() sequencer.Timing {
	t := sequencer.DefaultTiming()
	t.Layered = true
	t.InitialOffset = time.Second
	t.StaggerMin, t.StaggerMax = 0, 0
	t.TravelMin = 2500 * time.Millisecond
	t.TravelMax = 2500 * time.Millisecond
	t.LayerGap = 1200 * time.Millisecond
	t.SettleDelay = time.Second
	return t
}
