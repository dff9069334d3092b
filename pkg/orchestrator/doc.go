// Package orchestrator implements the Bot Orchestration Core's four
// scheduling/control components: the bot Coordinator, the bot Evaluator,
// the position Monitor, and the Scheduler. These sit above the leaf
// packages (pkg/broker, pkg/ratecoord, pkg/marketcache, pkg/chart,
// pkg/strategy, pkg/htf, pkg/decision, pkg/ledger, pkg/riskgate) and wire
// them into the end-to-end evaluate/monitor pipeline.
package orchestrator
