package worker

import "github.com/kinovod/kino/pkg/logger"

var workerLogger = logger.Get("Worker")

type WorkerWakeupChan chan int

type WorkerStatus int

const (
	SLEEPING WorkerStatus = iota
	WORKING
	FINISHED
)

// WorkerTask is the unit of work given to a worker. The task should claim
// and process at most one piece of work per invocation, returning true if
// work was found (the worker will immediately call the task again), or
// false if the task found nothing to do (the worker will go to sleep until
// woken via its wakeup channel).
type WorkerTask func(w Worker) (bool, error)

type Worker interface {
	Start()
	Status() WorkerStatus
	WakeupChan() WorkerWakeupChan
	Label() string
	Close()
}

type taskWorker struct {
	label         string
	task          WorkerTask
	wakeupChan    WorkerWakeupChan
	currentStatus WorkerStatus
}

func NewWorker(label string, task WorkerTask) *taskWorker {
	return &taskWorker{
		label: label,
		task:  task,
		// The buffer latches a wakeup that arrives between the task's final
		// empty claim and the worker actually sleeping; without it such a
		// signal is lost and the work waits for the next enqueue.
		wakeupChan:    make(WorkerWakeupChan, 1),
		currentStatus: SLEEPING,
	}
}

// Start runs the workers task in a loop until the task reports that no
// work remains, at which point the worker sleeps until it's woken up. If
// the wakeup channel is closed, the worker finishes and Start returns.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker with label %s\n", worker.label)

	for {
		worker.currentStatus = WORKING
		for {
			didWork, err := worker.task(worker)
			if err != nil {
				workerLogger.Emit(logger.ERROR, "Worker %s task reported an error: %v\n", worker.label, err)
				break
			}

			if !didWork {
				break
			}
		}

		if !worker.sleep() {
			return
		}
	}
}

func (worker *taskWorker) Status() WorkerStatus {
	return worker.currentStatus
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

func (worker *taskWorker) Label() string {
	return worker.label
}

// Close closes the worker by closing it's wakeup channel. Note that this
// does not interrupt a task that is currently running.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// sleep blocks until the workers wakeup channel is signalled from another
// goroutine. The return is false if the channel was closed, indicating
// the worker should quit.
func (worker *taskWorker) sleep() (isAlive bool) {
	worker.currentStatus = SLEEPING

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = WORKING
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%s' has been closed - worker is exiting\n", worker.label)
		worker.currentStatus = FINISHED
	}

	return isAlive
}
