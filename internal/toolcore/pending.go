package toolcore

import (
	"sync"
	"time"
)

// PendingExecution is the record the submit path writes and the sandbox
// poll loop reads, shared between both and therefore guarded by a single
// mutex per §5's shared-resource policy.
type PendingExecution struct {
	ExecutionID     string
	TaskID          string
	RequestingAgent string
	ToolName        string
	StartedAt       time.Time
	PollAttempts    int
}

// pendingTable is a mutex-guarded map, not a sync.Map: the poll loop
// iterates the whole table every tick, which sync.Map does not do
// efficiently or with a stable snapshot.
type pendingTable struct {
	mu   sync.Mutex
	byID map[string]*PendingExecution
}

func newPendingTable() *pendingTable {
	return &pendingTable{byID: make(map[string]*PendingExecution)}
}

func (p *pendingTable) put(e *PendingExecution) {
	p.mu.Lock()
	p.byID[e.ExecutionID] = e
	p.mu.Unlock()
}

func (p *pendingTable) get(id string) (*PendingExecution, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byID[id]
	return e, ok
}

func (p *pendingTable) remove(id string) {
	p.mu.Lock()
	delete(p.byID, id)
	p.mu.Unlock()
}

func (p *pendingTable) snapshot() []*PendingExecution {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*PendingExecution, 0, len(p.byID))
	for _, e := range p.byID {
		out = append(out, e)
	}
	return out
}

func (p *pendingTable) incrementAttempts(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byID[id]
	if !ok {
		return 0
	}
	e.PollAttempts++
	return e.PollAttempts
}
