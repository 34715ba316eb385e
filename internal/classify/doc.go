// Package classify turns bridged command outcomes into tagged verdicts.
//
// Classifier is pure: it inspects a bridge.CommandOutcome together with the
// criticality of the step that produced it and reports Success, SoftFail, or
// HardFail. It also recognizes outcomes that suggest the helper refuses
// external commands because of its own configuration gate.
package classify
