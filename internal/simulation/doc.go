// Package simulation drives the demographic engine and metapopulation
// coupler through a full run and validates the model against published
// field outcomes.
//
// Run loops {focal step, neighborhood step, coupling} for the configured
// duration and returns every snapshot plus summary statistics. It is
// deterministic: identical parameters produce identical results.
//
// The package also carries a small harness for tests. Scenarios are named
// parameter sets; Runner executes them against a *testing.T and the Assert*
// helpers check properties of the resulting trajectories.
//
// Usage:
//
//	func TestSterilizationShrinksColony(t *testing.T) {
//	    sc, _ := simulation.Preset(simulation.PresetSterilization)
//	    result := simulation.NewRunner(t).Run(sc)
//	    simulation.AssertFinalWithin(t, result, 12.6, 29.4)
//	    simulation.AssertNonNegative(t, result)
//	}
package simulation
