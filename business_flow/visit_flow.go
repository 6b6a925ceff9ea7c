package businessflow

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mijikai/mijikai/repository"
)

var linkVisitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "shortener_link_visits_total",
	Help: "Redirect lookups by outcome",
}, []string{"outcome"})

// VisitFlow resolves a short id to its target for redirection
type VisitFlow interface {
	Resolve(ctx context.Context, uid string) (string, error)
}

type VisitFlowImpl struct {
	linkRepo repository.LinkRepository
}

func NewVisitFlow(linkRepo repository.LinkRepository) VisitFlow {
	return &VisitFlowImpl{linkRepo: linkRepo}
}

func (v *VisitFlowImpl) Resolve(ctx context.Context, uid string) (string, error) {
	link, err := v.linkRepo.ByUID(ctx, uid)
	if err != nil {
		linkVisitsTotal.WithLabelValues("error").Inc()
		return "", NewBusinessError(CodeInternalServerError, err)
	}
	if link == nil {
		linkVisitsTotal.WithLabelValues("miss").Inc()
		return "", ErrLinkNotFound
	}
	linkVisitsTotal.WithLabelValues("hit").Inc()
	return link.TargetURL, nil
}
