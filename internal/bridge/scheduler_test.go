package bridge

import "testing"

func TestTaskResumeRunsStepsUntilDead(t *testing.T) {
	t.Parallel()

	calls := 0
	var step StepFunc
	step = func() (TaskState, StepFunc) {
		calls++
		if calls < 3 {
			return TaskSuspended, step
		}
		return TaskDead, nil
	}

	task := NewTask(step)
	if task.State() != TaskReady {
		t.Fatalf("initial state = %v, want TaskReady", task.State())
	}

	for i := 0; i < 2; i++ {
		if st := task.Resume(); st != TaskSuspended {
			t.Fatalf("Resume #%d = %v, want TaskSuspended", i+1, st)
		}
	}
	if st := task.Resume(); st != TaskDead {
		t.Fatalf("final Resume = %v, want TaskDead", st)
	}
	if calls != 3 {
		t.Errorf("step ran %d times, want 3", calls)
	}
}

func TestTaskResumeOnDeadTaskIsNoOp(t *testing.T) {
	t.Parallel()

	task := NewTask(func() (TaskState, StepFunc) { return TaskDead, nil })
	task.Resume()

	if st := task.Resume(); st != TaskDead {
		t.Errorf("Resume on dead task = %v, want TaskDead", st)
	}
}

func TestSchedulerPumpAllResumesEveryLiveTaskOnce(t *testing.T) {
	t.Parallel()

	var s Scheduler
	var aCalls, bCalls int

	var aStep, bStep StepFunc
	aStep = func() (TaskState, StepFunc) {
		aCalls++
		if aCalls < 2 {
			return TaskSuspended, aStep
		}
		return TaskDead, nil
	}
	bStep = func() (TaskState, StepFunc) {
		bCalls++
		return TaskDead, nil
	}

	s.Spawn(aStep)
	s.Spawn(bStep)

	if live := s.PumpAll(); live != 1 {
		t.Fatalf("after first pump, live = %d, want 1 (a still suspended)", live)
	}
	if aCalls != 1 || bCalls != 1 {
		t.Fatalf("aCalls=%d bCalls=%d, want 1 and 1 after one pump", aCalls, bCalls)
	}

	if live := s.PumpAll(); live != 0 {
		t.Fatalf("after second pump, live = %d, want 0", live)
	}
	if !s.Idle() {
		t.Error("Idle() false after every task finished")
	}
}

func TestSchedulerIdleOnEmptySet(t *testing.T) {
	t.Parallel()

	var s Scheduler
	if !s.Idle() {
		t.Error("Idle() false on a scheduler with no spawned tasks")
	}
}
