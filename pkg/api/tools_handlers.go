package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tollgate/pkg/apierr"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/tools"
)

// ToolInfo is a catalogue entry: the tool plus its price per call
type ToolInfo struct {
	tools.Tool
	CostCents float64 `json:"costCents"`
}

// listTools handles GET /api/tools
func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	infos := make([]ToolInfo, 0, len(list))
	for _, tool := range list {
		infos = append(infos, ToolInfo{Tool: tool, CostCents: s.prices.CostCents(tool.ID)})
	}
	httputil.WriteSuccess(w, r, infos)
}

// callTool handles POST /api/tools/{toolID}. Unknown tools are rejected
// before any credential or billing work.
func (s *Server) callTool(w http.ResponseWriter, r *http.Request) {
	toolID := strings.ToLower(mux.Vars(r)["toolID"])
	h, ok := s.toolHandlers[toolID]
	if !ok {
		httputil.WriteError(w, r, apierr.NotFound("Unknown tool: "+toolID))
		return
	}
	h.ServeHTTP(w, r)
}
