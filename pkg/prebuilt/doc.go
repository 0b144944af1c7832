// Package prebuilt provides ready-made agent pipelines for the claim
// processing demo. Each prebuilt bundles a validated *graph.Graph with the
// pacing it is animated with and the result document shown once a run has
// settled. Builders are looked up by name through a Registry.
package prebuilt
