package edge

import (
	"net/http"

	"github.com/strayhaven/edge/internal/proxy"
	"github.com/strayhaven/edge/internal/routing"
	"github.com/strayhaven/edge/variables"
)

// ActionBypass marks requests handed to the native handler before
// classification.
const ActionBypass = "bypass"

// Dispatcher is the innermost handler of the public listener: it classifies
// each request and either serves it natively or rewrites it to the legacy
// origin.
type Dispatcher struct {
	classifier *routing.Classifier
	bypass     *routing.GlobSet
	native     http.Handler
	legacy     *proxy.Forwarder
}

// NewDispatcher wires a dispatcher. legacy may be nil only when the
// classifier has no legacy origin.
func NewDispatcher(classifier *routing.Classifier, bypass *routing.GlobSet, native http.Handler, legacy *proxy.Forwarder) *Dispatcher {
	return &Dispatcher{
		classifier: classifier,
		bypass:     bypass,
		native:     native,
		legacy:     legacy,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	varCtx := variables.GetFromRequest(r)

	if d.bypass.Match(r.URL.Path) {
		varCtx.Action = ActionBypass
		varCtx.Reason = ActionBypass
		d.native.ServeHTTP(w, r)
		return
	}

	decision := d.classifier.Classify(r.URL.Path, r.URL.RawQuery)
	varCtx.Action = decision.Action.String()
	varCtx.Reason = string(decision.Reason)

	if decision.Action == routing.Rewrite && d.legacy != nil {
		varCtx.Target = decision.Target.String()
		d.legacy.Forward(w, r, decision.Target)
		return
	}
	d.native.ServeHTTP(w, r)
}
