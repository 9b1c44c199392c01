package gateway

import (
	"net/http"
	"time"

	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/tools"
)

// ToolResponse is the data block of a successful tool call
type ToolResponse struct {
	Result  interface{} `json:"result"`
	Balance int64       `json:"balance"`
}

// Handler serves POST calls to tool: admission, then body validation, then
// the tool itself. Body errors are reported after the call has been billed.
func (g *Gate) Handler(tool tools.Tool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admission, apiErr := g.Admit(r.Context(), r.Header.Get("Authorization"), tool.ID)
		if apiErr != nil {
			g.countTool(tool.ID, "denied")
			httputil.WriteError(w, r, apiErr)
			return
		}

		ctx := WithIdentity(r.Context(), admission.Identity)
		r = r.WithContext(ctx)
		log := observability.FromContext(ctx).WithField("tool", tool.ID)

		start := time.Now()
		var input tools.Input
		if err := httputil.ParseJSON(r, &input); err != nil {
			g.countTool(tool.ID, "invalid")
			httputil.WriteError(w, r, err)
			return
		}
		if input == nil {
			input = tools.Input{}
		}
		if verr := tool.Validate(input); verr != nil {
			g.countTool(tool.ID, "invalid")
			httputil.WriteError(w, r, verr)
			return
		}
		g.observe(StageBodyValidated, start)

		start = time.Now()
		result, err := tool.Run(input)
		g.observe(StageToolExecuted, start)
		if err != nil {
			apiErr := apierr.From(err)
			if apiErr.Code == apierr.CodeValidation {
				g.countTool(tool.ID, "invalid")
			} else {
				g.countTool(tool.ID, "error")
			}
			log.WithError(err).Debug("Tool rejected input")
			httputil.WriteError(w, r, apiErr)
			return
		}

		g.countTool(tool.ID, "success")
		httputil.WriteMetered(w, r, ToolResponse{Result: result, Balance: admission.Balance()}, admission.Meta())
	})
}

func (g *Gate) countTool(toolID, outcome string) {
	if g.metrics != nil {
		g.metrics.ToolCallsTotal.WithLabelValues(toolID, outcome).Inc()
	}
}
