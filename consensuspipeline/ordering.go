package consensuspipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/heimdalr/dag"
	"github.com/sirupsen/logrus"
)

// ScheduleChangeSubDags is the fixed window, in committed sub-dags,
// after which the ordering engine logs a schedule-change checkpoint.
// It does not otherwise affect commit behavior.
const ScheduleChangeSubDags = 300

type vertexCert struct {
	cert Certificate
}

func (v vertexCert) ID() string { return certVertexID(v.cert.ID()) }

func certVertexID(id CertificateID) string {
	return fmt.Sprintf("%d/%s", id.Round, id.Author)
}

// OrderingEngine is a Bullshark-style DAG ordering engine: certificates
// arrive out of causal order over the wire but are only committed, in
// round order, once every parent they reference is already present in
// the DAG. gc_depth bounds how many trailing rounds of vertices are
// retained once committed.
type OrderingEngine struct {
	graph   *dag.DAG
	gcDepth int
	log     *logrus.Entry

	mu          sync.Mutex
	pending     map[string]Certificate
	byRound     map[uint64][]Certificate
	nextRound   uint64
	committedN  int
}

func NewOrderingEngine(gcDepth int, log *logrus.Entry) *OrderingEngine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &OrderingEngine{
		graph:   dag.NewDAG(),
		gcDepth: gcDepth,
		log:     log,
		pending: make(map[string]Certificate),
		byRound: make(map[uint64][]Certificate),
	}
}

// AddCertificate inserts a verified certificate into the DAG and
// returns the CommittedSubDags (possibly none, possibly several) that
// became causally complete as a result, in round order.
func (e *OrderingEngine) AddCertificate(c Certificate) ([]CommittedSubDag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := certVertexID(c.ID())
	if err := e.graph.AddVertexByID(id, vertexCert{cert: c}); err != nil {
		return nil, err
	}
	for _, parent := range c.Parents {
		pid := certVertexID(parent)
		if _, err := e.graph.GetVertex(pid); err == nil {
			if err := e.graph.AddEdge(pid, id); err != nil {
				e.log.WithError(err).Debug("ordering engine: add edge")
			}
		}
	}
	e.pending[id] = c
	e.byRound[c.Round] = append(e.byRound[c.Round], c)

	var out []CommittedSubDag
	for {
		sub, ok := e.tryCommitNextRoundLocked()
		if !ok {
			break
		}
		out = append(out, sub)
	}
	return out, nil
}

// tryCommitNextRoundLocked commits e.nextRound if every certificate in
// it has all of its parents already present in the DAG (causally
// complete), then advances e.nextRound. Caller holds e.mu.
func (e *OrderingEngine) tryCommitNextRoundLocked() (CommittedSubDag, bool) {
	certs, ok := e.byRound[e.nextRound]
	if !ok || len(certs) == 0 {
		return CommittedSubDag{}, false
	}
	for _, c := range certs {
		for _, parent := range c.Parents {
			if _, err := e.graph.GetVertex(certVertexID(parent)); err != nil {
				return CommittedSubDag{}, false
			}
		}
	}

	sort.Slice(certs, func(i, j int) bool { return certs[i].Author < certs[j].Author })
	for _, c := range certs {
		delete(e.pending, certVertexID(c.ID()))
	}
	e.nextRound++
	e.committedN++

	if e.committedN%ScheduleChangeSubDags == 0 {
		e.log.WithField("committed", e.committedN).Info("schedule change checkpoint")
	}
	e.gcLocked()

	return CommittedSubDag{Certificates: certs}, true
}

func (e *OrderingEngine) gcLocked() {
	if e.gcDepth <= 0 || e.nextRound <= uint64(e.gcDepth) {
		return
	}
	cutoff := e.nextRound - uint64(e.gcDepth)
	for round, certs := range e.byRound {
		if round >= cutoff {
			continue
		}
		for _, c := range certs {
			_ = e.graph.DeleteVertex(certVertexID(c.ID()))
		}
		delete(e.byRound, round)
	}
}

// Spawn runs the ordering engine as a goroutine consuming newCerts and
// producing committed sub-dags on the first returned channel until
// shutdown fires or newCerts closes. The second channel emits every
// individually-committed certificate; the pipeline drains it with a
// dedicated no-op goroutine so a slow reader there can never
// backpressure the engine (see Pipeline.Run).
func (e *OrderingEngine) Spawn(ctx context.Context, shutdown <-chan struct{}, newCerts <-chan Certificate) (<-chan CommittedSubDag, <-chan Certificate) {
	out := make(chan CommittedSubDag)
	committed := make(chan Certificate, 256)
	go func() {
		defer close(out)
		defer close(committed)
		for {
			select {
			case <-shutdown:
				return
			case <-ctx.Done():
				return
			case c, ok := <-newCerts:
				if !ok {
					return
				}
				subdags, err := e.AddCertificate(c)
				if err != nil {
					e.log.WithError(err).Warn("ordering engine: add certificate failed")
					continue
				}
				for _, sd := range subdags {
					for _, cc := range sd.Certificates {
						select {
						case committed <- cc:
						default: // drained channel; never block the engine on a slow reader
						}
					}
					select {
					case out <- sd:
					case <-shutdown:
						return
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, committed
}
