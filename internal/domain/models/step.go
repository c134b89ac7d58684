package models

// StepType is the closed vocabulary of build plan steps.
type StepType string

const (
	StepText         StepType = "text"
	StepCreateFile   StepType = "create_file"
	StepCreateFolder StepType = "create_folder"
	StepRunCommand   StepType = "run_command"
)

// StepStatus is the lifecycle flag of a step.
type StepStatus string

const (
	StatusUnset     StepStatus = ""
	StatusPending   StepStatus = "pending"
	StatusCompleted StepStatus = "completed"
)

// Step is one unit of the build plan parsed from an assistant reply.
type Step struct {
	ID          int        `json:"id" msgpack:"id"`
	Type        StepType   `json:"type" msgpack:"type"`
	Title       string     `json:"title" msgpack:"title"`
	Description string     `json:"description,omitempty" msgpack:"description,omitempty"`
	Path        string     `json:"path,omitempty" msgpack:"path,omitempty"`       // CreateFile only
	Code        string     `json:"code,omitempty" msgpack:"code,omitempty"`       // CreateFile only
	Command     string     `json:"command,omitempty" msgpack:"command,omitempty"` // RunCommand only
	Status      StepStatus `json:"status" msgpack:"status"`
}

// IsPending reports whether the step still waits for a merge pass.
func (s *Step) IsPending() bool {
	return s.Status == StatusPending
}
