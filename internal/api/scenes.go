package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
	"github.com/nerrad567/gray-logic-adapters/internal/home"
)

type sceneBody struct {
	Params    map[string]any `json:"params"`
	AdapterID string         `json:"adapter_id"`
	Priority  int            `json:"priority"`
	Confirmed bool           `json:"confirmed"`
}

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes := s.home.ListScenes(r.Context())
	if scenes == nil {
		scenes = []device.Scene{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

// handleExecuteScene runs a scene. The body is optional.
func (s *Server) handleExecuteScene(w http.ResponseWriter, r *http.Request) {
	var body sceneBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd, err := device.NewSceneCommand(chi.URLParam(r, "id"), body.Params)
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}

	res, err := s.home.ExecuteSceneCommand(r.Context(), home.SceneRequest{
		Command:   cmd,
		AdapterID: body.AdapterID,
		Priority:  body.Priority,
		Confirmed: body.Confirmed,
		UserID:    callerID(r),
		Source:    "api",
	})
	if err != nil {
		writeDomainError(w, err, verdictDetails(res))
		return
	}
	if !res.Executed {
		writeRefusal(w, res.Verdict)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
