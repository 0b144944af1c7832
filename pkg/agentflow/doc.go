// Package agentflow is the public façade over the pipeline animation
// runtime. A Runtime owns one pipeline: its sequencer, the event queue
// driving it, the layout used to draw it, an event hub for live viewers
// and, optionally, a journal of run checkpoints.
//
// The default Runtime animates the classic claim pipeline in real time:
//
//	rt, err := agentflow.New()
//	if err != nil { ... }
//	defer rt.Close()
//	if _, err := rt.Start(agentflow.StartRunRequest{}); err != nil { ... }
//	frame := rt.Frame(1200, 700)
//
// Tests and offline tools pass a virtual scheduler with WithScheduler and
// advance it by hand.
package agentflow
