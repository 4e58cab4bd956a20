package enrollment

import (
	"context"
	"sync"

	"github.com/Kjfer/peri-craft-campus-sub001/internal/db"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/metrics"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"go.uber.org/zap"
)

type pair struct {
	BuyerUUID  string
	CourseUUID string
}

// Granter creates one enrollment per (buyer, course) pair of a completed
// order. Duplicate grants converge on the store's uniqueness constraint; a
// failed insert is queued and retried by the scheduler without blocking the
// remaining items or the buyer-visible order status.
type Granter struct {
	Database db.Database
	Metrics  *metrics.Registry
	Logger   *zap.SugaredLogger

	mu      sync.Mutex
	pending map[pair]struct{}
}

func NewGranter(database db.Database, registry *metrics.Registry, logger *zap.SugaredLogger) *Granter {
	return &Granter{
		Database: database,
		Metrics:  registry,
		Logger:   logger,
		pending:  make(map[pair]struct{}),
	}
}

func (g *Granter) GrantEnrollments(order *models.Order) {
	for _, item := range order.Items {
		g.grant(pair{BuyerUUID: order.BuyerUUID, CourseUUID: item.CourseUUID})
	}
}

func (g *Granter) grant(p pair) {
	created, err := g.Database.InsertEnrollment(p.BuyerUUID, p.CourseUUID)
	if err != nil {
		g.Logger.Warnw("enrollment grant failed, queued for retry",
			"buyer", p.BuyerUUID, "course", p.CourseUUID, "error", err)
		g.Metrics.EnrollmentFailures.Inc()
		g.mu.Lock()
		g.pending[p] = struct{}{}
		g.mu.Unlock()
		return
	}

	if created {
		g.Metrics.EnrollmentGrants.Inc()
	} else {
		g.Metrics.EnrollmentConflicts.Inc()
	}
}

// RetryPending re-attempts every queued grant. Registered as a scheduler job.
func (g *Granter) RetryPending(ctx context.Context) {
	g.mu.Lock()
	queued := make([]pair, 0, len(g.pending))
	for p := range g.pending {
		queued = append(queued, p)
	}
	g.pending = make(map[pair]struct{})
	g.mu.Unlock()

	for i, p := range queued {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			for _, rest := range queued[i:] {
				g.pending[rest] = struct{}{}
			}
			g.mu.Unlock()
			return
		default:
			g.grant(p)
		}
	}
}

// PendingCount reports how many grants are waiting for a retry.
func (g *Granter) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
