package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type JobStatus int

const (
	// PENDING means the job is waiting for a worker to claim it.
	PENDING JobStatus = iota

	// PROBING means a worker is inspecting the source file.
	PROBING

	// ENCODING means renditions are being produced.
	ENCODING

	// FINALIZING means all renditions succeeded and the registry row
	// is being updated to publish the playlist.
	FINALIZING

	// DONE is the terminal success state.
	DONE

	// FAILED is the terminal failure state. Failed jobs are retained
	// in the queue for inspection.
	FAILED
)

func (s JobStatus) String() string {
	switch s {
	case PENDING:
		return "PENDING"
	case PROBING:
		return "PROBING"
	case ENCODING:
		return "ENCODING"
	case FINALIZING:
		return "FINALIZING"
	case DONE:
		return "DONE"
	case FAILED:
		return "FAILED"
	}

	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// Job is a single transcoding run for one movie. A job moves
// PENDING -> PROBING -> ENCODING -> FINALIZING -> DONE, or to FAILED
// from any intermediate state once its attempts are exhausted.
type Job struct {
	ID       uuid.UUID
	MovieID  int64
	Status   JobStatus
	Attempts int

	// RenditionsDone counts completed renditions, for progress reporting.
	RenditionsDone  int
	RenditionsTotal int

	LastError string

	// cancel aborts the in-flight run when the movie is deleted
	// mid-encode. Only set while a worker holds the job.
	cancel context.CancelFunc
}

func NewJob(movieID int64) *Job {
	return &Job{
		ID:      uuid.New(),
		MovieID: movieID,
		Status:  PENDING,
	}
}

// isTerminal reports whether the job can never run again.
func (job *Job) isTerminal() bool {
	return job.Status == DONE || job.Status == FAILED
}

func (job *Job) String() string {
	return fmt.Sprintf("Job{id=%s movie=%d status=%s attempts=%d}", job.ID, job.MovieID, job.Status, job.Attempts)
}
