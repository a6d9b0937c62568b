package worker

// JobType selects what a worker does with a Job.
type JobType int

const (
	Run JobType = iota
	Stop
)

// Job is one unit of asynchronous work.
type Job struct {
	Type JobType
	Fn   func()
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		for {
			fn, ok := w.pool.Release(w.jobChannel)
			if !ok {
				return
			}
			if fn == nil {
				job := <-w.jobChannel
				if job.Type == Stop {
					return
				}
				fn = job.Fn
			}
			if fn != nil {
				fn()
			}
		}
	}()
}
