package bridge

// Scheduler is a cooperative task driver for sequencing asynchronous setup
// and shutdown steps. cmd/bridged does not spawn tasks on it; only its own
// tests drive it. It never runs concurrently with the event-loop's
// data-plane handlers.
//
// Go has no native coroutine primitive that yields mid-function without a
// goroutine, so a Task here is a continuation: each step runs until it
// chooses to suspend, returning the StepFunc to resume from next time. This
// keeps tasks single-threaded and caller-driven, matching the source
// coroutine model (resume order is the caller's, not a scheduler's).

// TaskState mirrors the source's four-state task lifecycle.
type TaskState uint8

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskSuspended
	TaskDead
)

// StepFunc runs one slice of a task's work, returning the state to leave it
// in and (if not TaskDead) the continuation to resume from next time.
type StepFunc func() (TaskState, StepFunc)

// Task is one cooperatively-scheduled unit of work.
type Task struct {
	state TaskState
	step  StepFunc
}

// NewTask wraps the first step of a task, in TaskReady state.
func NewTask(first StepFunc) *Task {
	return &Task{state: TaskReady, step: first}
}

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState {
	return t.state
}

// Resume runs the task's next step if it is not already dead. A step that
// returns TaskDead is not resumed again.
func (t *Task) Resume() TaskState {
	if t.state == TaskDead || t.step == nil {
		return TaskDead
	}
	t.state = TaskRunning
	state, next := t.step()
	t.state = state
	t.step = next
	if state == TaskDead {
		t.step = nil
	}
	return state
}

// Scheduler owns a set of tasks spawned for one setup or shutdown sequence.
type Scheduler struct {
	tasks []*Task
}

// Spawn adds a new task in TaskReady state and returns it.
func (s *Scheduler) Spawn(first StepFunc) *Task {
	t := NewTask(first)
	s.tasks = append(s.tasks, t)
	return t
}

// PumpAll resumes every task that is not yet dead, once each, in spawn
// order, and compacts dead tasks out of the set. Returns the number of
// tasks still alive after the pump. Callers doing init/shutdown loop this
// until it returns 0 or a retry budget (the source's 1,000-pump cap) is
// exhausted.
func (s *Scheduler) PumpAll() int {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if t.state == TaskDead {
			continue
		}
		if t.Resume() != TaskDead {
			live = append(live, t)
		}
	}
	s.tasks = live
	return len(s.tasks)
}

// Idle reports whether every task has finished.
func (s *Scheduler) Idle() bool {
	return len(s.tasks) == 0
}
