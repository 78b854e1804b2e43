package engine

import (
	"context"
	"log/slog"

	"github.com/use-agent/scrapepal/models"
	"github.com/use-agent/scrapepal/simhash"
)

// sameShapeDistance is the largest DOM fingerprint distance at which static
// and rendered markup count as the same page shape.
const sameShapeDistance = 3

// Selection is the outcome of a mode-selected fetch.
type Selection struct {
	Result *FetchResult

	// Method is the engine that produced Result ("static" or "dynamic").
	Method string

	// Escalated is true when an auto fetch ended on the browser.
	Escalated bool
	Reason    string
}

// Selector picks the fetch engine for a requested mode. In auto mode it runs
// a two-step pipeline: static first, then dynamic when the static attempt
// failed or the escalation policy flags the markup.
type Selector struct {
	static  Engine
	dynamic Engine
	policy  EscalationPolicy
	memory  *DomainMemory
}

// NewSelector creates a Selector. memory may be nil.
func NewSelector(static, dynamic Engine, policy EscalationPolicy, memory *DomainMemory) *Selector {
	return &Selector{
		static:  static,
		dynamic: dynamic,
		policy:  policy,
		memory:  memory,
	}
}

// Fetch retrieves req.URL with the strategy chosen for mode.
func (s *Selector) Fetch(ctx context.Context, req *FetchRequest, mode models.Mode) (*Selection, error) {
	switch mode {
	case models.ModeStatic:
		return s.single(ctx, s.static, req)
	case models.ModeDynamic:
		return s.single(ctx, s.dynamic, req)
	case models.ModeAuto, "":
		return s.auto(ctx, req)
	default:
		_, err := models.ParseMode(string(mode))
		return nil, err
	}
}

// Policy returns the escalation policy in use.
func (s *Selector) Policy() EscalationPolicy { return s.policy }

// StatsReporter is implemented by engines that own a page pool.
type StatsReporter interface {
	Stats() models.PoolStats
}

// PoolStats reports the dynamic engine's pool, or zero values when the
// engine has none.
func (s *Selector) PoolStats() models.PoolStats {
	if r, ok := s.dynamic.(StatsReporter); ok {
		return r.Stats()
	}
	return models.PoolStats{}
}

// Close closes both engines and stops the domain memory.
func (s *Selector) Close() error {
	s.memory.Stop()
	errStatic := s.static.Close()
	errDynamic := s.dynamic.Close()
	if errStatic != nil {
		return errStatic
	}
	return errDynamic
}

func (s *Selector) single(ctx context.Context, e Engine, req *FetchRequest) (*Selection, error) {
	res, err := e.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Selection{Result: res, Method: e.Name()}, nil
}

func (s *Selector) auto(ctx context.Context, req *FetchRequest) (*Selection, error) {
	var dynErr error
	triedDynamic := false

	if remembered, why := s.memory.NeedsBrowser(req.URL); remembered {
		res, err := s.dynamic.Fetch(ctx, req)
		if err == nil {
			slog.Debug("domain memory hit", "url", req.URL, "reason", why)
			return &Selection{
				Result:    res,
				Method:    s.dynamic.Name(),
				Escalated: true,
				Reason:    "domain previously needed a browser: " + why,
			}, nil
		}
		slog.Info("remembered browser fetch failed, retrying static first",
			"url", req.URL, "error", err)
		s.memory.Forget(req.URL)
		dynErr, triedDynamic = err, true
	}

	staticRes, staticErr := s.static.Fetch(ctx, req)

	var reason string
	if staticErr != nil {
		reason = "static fetch failed: " + models.HumanError(staticErr)
	} else if escalate, why := s.policy.Evaluate(staticRes.HTML); escalate {
		reason = why
	} else {
		return &Selection{Result: staticRes, Method: s.static.Name()}, nil
	}

	if !triedDynamic {
		slog.Debug("escalating to browser", "url", req.URL, "reason", reason)
		var dynRes *FetchResult
		dynRes, dynErr = s.dynamic.Fetch(ctx, req)
		if dynErr == nil {
			if staticErr == nil {
				s.rememberIfRendered(req.URL, reason, staticRes.HTML, dynRes.HTML)
			}
			return &Selection{
				Result:    dynRes,
				Method:    s.dynamic.Name(),
				Escalated: true,
				Reason:    reason,
			}, nil
		}
	}

	// A thin static page beats no page.
	if staticErr == nil {
		slog.Warn("browser escalation failed, keeping static result",
			"url", req.URL, "reason", reason, "error", dynErr)
		return &Selection{Result: staticRes, Method: s.static.Name()}, nil
	}

	slog.Debug("both fetch strategies failed", "url", req.URL,
		"static_error", staticErr, "dynamic_error", dynErr)
	return nil, dynErr
}

// rememberIfRendered records the domain only when the browser produced a
// structurally different DOM. A rendered page with the same tag shape as the
// static one means the browser bought nothing for this domain.
func (s *Selector) rememberIfRendered(rawURL, reason, staticHTML, renderedHTML string) {
	if s.memory == nil {
		return
	}
	dist := simhash.Distance(simhash.Markup(staticHTML), simhash.Markup(renderedHTML))
	slog.Debug("escalation dom distance", "url", rawURL, "distance", dist)
	if dist <= sameShapeDistance {
		return
	}
	s.memory.Remember(rawURL, reason)
}
