package orchestrator

import "context"

// CycleJob adapts RunCycle to the scheduler's job contract.
type CycleJob struct {
	Orchestrator *Orchestrator
	Ctx          context.Context
}

func (j CycleJob) Name() string { return "trading_cycle" }

func (j CycleJob) Run() error { return j.Orchestrator.RunCycle(j.Ctx) }

// EvolutionJob adapts the scheduled end-of-day evolution evaluation.
type EvolutionJob struct {
	Orchestrator *Orchestrator
}

func (j EvolutionJob) Name() string { return "strategy_evolution" }

func (j EvolutionJob) Run() error { return j.Orchestrator.RunEvolution() }
