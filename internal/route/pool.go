package route

import "fieldsched/internal/model"

// Pool is the working set of unplaced jobs of one build. It is owned by a
// single build and is not safe for concurrent use.
type Pool struct {
	jobs []model.Job
}

// NewPool copies jobs into a new pool, dropping duplicate work orders.
func NewPool(jobs []model.Job) *Pool {
	p := &Pool{jobs: make([]model.Job, 0, len(jobs))}
	p.Put(jobs...)
	return p
}

// Len returns the number of unplaced jobs.
func (p *Pool) Len() int { return len(p.jobs) }

// Jobs returns a copy of the unplaced jobs in insertion order.
func (p *Pool) Jobs() []model.Job {
	return append([]model.Job(nil), p.jobs...)
}

// Has reports whether wo is still unplaced.
func (p *Pool) Has(wo int64) bool {
	return p.indexOf(wo) >= 0
}

// Take removes wo from the pool.
func (p *Pool) Take(wo int64) (model.Job, bool) {
	i := p.indexOf(wo)
	if i < 0 {
		return model.Job{}, false
	}
	j := p.jobs[i]
	p.jobs = append(p.jobs[:i], p.jobs[i+1:]...)
	return j, true
}

// Put returns jobs to the pool. Work orders already present are ignored.
func (p *Pool) Put(jobs ...model.Job) {
	for _, j := range jobs {
		if p.indexOf(j.WorkOrder) >= 0 {
			continue
		}
		p.jobs = append(p.jobs, j)
	}
}

func (p *Pool) indexOf(wo int64) int {
	for i := range p.jobs {
		if p.jobs[i].WorkOrder == wo {
			return i
		}
	}
	return -1
}
